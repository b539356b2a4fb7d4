package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/arena-match-engine/internal/api"
	"github.com/rl-arena/arena-match-engine/internal/api/handlers"
	"github.com/rl-arena/arena-match-engine/internal/config"
	"github.com/rl-arena/arena-match-engine/internal/repository"
	"github.com/rl-arena/arena-match-engine/internal/service"
	"github.com/rl-arena/arena-match-engine/internal/websocket"
	"github.com/rl-arena/arena-match-engine/pkg/database"
	"github.com/rl-arena/arena-match-engine/pkg/distributed"
	"github.com/rl-arena/arena-match-engine/pkg/logger"
	"github.com/rl-arena/arena-match-engine/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting arena match engine",
		"port", cfg.Port,
		"env", cfg.Env,
		"quotaBackend", cfg.QuotaBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		defer rdb.Close()
		logger.Info("Redis connected")
	}

	clock := service.NewRealClock()
	events := service.NewEventBroker()

	// ledgers and stores
	walletRepo := repository.NewWalletRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	streakRepo := repository.NewStreakRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	matchRepo := repository.NewMatchRepository(db)

	var quotaStore service.QuotaStore = repository.NewQuotaRepository(db)
	if cfg.QuotaBackend == "redis" {
		quotaStore = distributed.NewRedisQuotaStore(rdb, "arena:quota:")
	}
	quota := service.NewDailyQuotaGuard(quotaStore, cfg.Arena, cfg.QuotaTimezone)

	settlement := service.NewSettlementService(
		walletRepo, progressRepo, streakRepo, settlementRepo,
		events, clock,
		cfg.SettlementRetryInterval, cfg.SettlementMaxBackoff,
		logger.Named("settlement"),
	)

	matchService := service.NewMatchService(service.MatchServiceDeps{
		Arena:         cfg.Arena,
		Configurator:  service.NewMatchConfigurator(cfg.Arena, quota),
		Quota:         quota,
		Tiers:         repository.NewPlayerRepository(db),
		Wallet:        walletRepo,
		Questions:     repository.NewQuestionRepository(db),
		Books:         repository.NewBookRepository(db),
		Settlement:    settlement,
		Archive:       matchRepo,
		Events:        events,
		Clock:         clock,
		RoundDuration: cfg.RoundDuration,
		Intermission:  cfg.RoundIntermission,
	}, logger.Named("match"))

	// live events: local sockets, plus other instances when redis is present
	hub := websocket.NewHub(logger.Named("ws"))
	go hub.Run(ctx)

	var locks *distributed.RedisLockManager
	var bus *distributed.EventBus
	var relay *websocket.Relay
	if rdb != nil {
		locks = distributed.NewRedisLockManager(rdb)
		bus = distributed.NewEventBus(rdb, "arena:events", logger.Named("bus"))
		relay = websocket.NewRelay(hub, bus, logger.Named("relay"))
		go func() {
			if err := bus.Start(ctx, relay.HandleRemote); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Event bus stopped", "error", err)
			}
		}()
	} else {
		relay = websocket.NewRelay(hub, nil, logger.Named("relay"))
	}
	go relay.Run(ctx)
	unsubscribe := events.Subscribe(relay.HandleEvent)
	defer unsubscribe()

	worker := service.NewSettlementWorker(settlement, locks, cfg.SettlementRetryInterval, logger.Named("settlement-worker")).
		WithArchiveRetry(matchService)
	if err := worker.Start(); err != nil {
		logger.Fatal("Failed to start settlement worker", "error", err)
	}

	startLimiter, answerLimiter, stopLimiters := buildLimiters(cfg, rdb)
	defer stopLimiters()

	health := map[string]handlers.Pinger{"postgres": db}
	if rdb != nil {
		health["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	router := api.SetupRouter(api.RouterDeps{
		Config:        cfg,
		Arena:         matchService,
		Hub:           hub,
		Health:        health,
		StartLimiter:  startLimiter,
		AnswerLimiter: answerLimiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// refund whatever is still being played, then give pending settlements
	// one last sweep
	matchService.Shutdown(shutdownCtx)
	matchService.RetryArchive(shutdownCtx)
	if n, err := settlement.RetryPending(shutdownCtx); err != nil {
		logger.Warn("Final settlement sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("Final settlement sweep", "settled", n)
	}

	if err := worker.Stop(); err != nil {
		logger.Warn("Settlement worker stop failed", "error", err)
	}
	if bus != nil {
		bus.Stop()
	}

	logger.Info("Server exited")
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// buildLimiters per-minute budgets shared across instances when redis is
// available, per process otherwise. A zero budget disables the limiter. stop
// ends the cleanup loops of in-process limiters.
func buildLimiters(cfg *config.Config, rdb *redis.Client) (start, answers ratelimit.Limiter, stop func()) {
	var local []*ratelimit.RateLimiter
	build := func(perMinute int) ratelimit.Limiter {
		if perMinute <= 0 {
			return nil
		}
		if rdb != nil {
			return ratelimit.NewRedisRateLimiter(rdb, "arena:rl:", perMinute, time.Minute)
		}
		l := ratelimit.NewRateLimiter(perMinute, float64(perMinute)/60)
		local = append(local, l)
		return l
	}

	start, answers = build(cfg.StartRateLimit), build(cfg.AnswerRateLimit)
	stop = func() {
		for _, l := range local {
			l.Stop()
		}
	}
	return start, answers, stop
}
