package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rl-arena/arena-match-engine/internal/api/handlers"
	"github.com/rl-arena/arena-match-engine/internal/api/middleware"
	"github.com/rl-arena/arena-match-engine/internal/config"
	"github.com/rl-arena/arena-match-engine/internal/websocket"
	jwtutil "github.com/rl-arena/arena-match-engine/pkg/jwt"
	"github.com/rl-arena/arena-match-engine/pkg/ratelimit"
)

// RouterDeps everything the HTTP surface needs, built by cmd/server
type RouterDeps struct {
	Config        *config.Config
	Arena         handlers.ArenaService
	Hub           *websocket.Hub
	Health        map[string]handlers.Pinger
	StartLimiter  ratelimit.Limiter
	AnswerLimiter ratelimit.Limiter
}

func SetupRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	jwtManager := jwtutil.NewJWTManager(cfg.JWTSecret, 0)
	auth := middleware.Auth(jwtManager)

	arenaHandler := handlers.NewArenaHandler(deps.Arena)
	healthHandler := handlers.NewHealthHandler(deps.Health)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, cfg.CORSAllowedOrigins)

	router.GET("/health", healthHandler.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(auth)
	{
		v1.GET("/ws", wsHandler.HandleWebSocket)

		arena := v1.Group("/arena")
		{
			matches := arena.Group("/matches")
			matches.POST("", limited("start", deps.StartLimiter), arenaHandler.StartMatch)
			matches.GET("/active", arenaHandler.GetActiveMatch)
			matches.GET("/:id", arenaHandler.GetMatch)
			matches.POST("/:id/answers", limited("answers", deps.AnswerLimiter), arenaHandler.SubmitAnswer)
			matches.POST("/:id/cancel", arenaHandler.CancelMatch)

			arena.GET("/quota", arenaHandler.GetQuota)
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func limited(scope string, limiter ratelimit.Limiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(scope, limiter, middleware.PlayerKey)
}
