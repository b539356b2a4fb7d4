package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by the database pool and the Redis client wrapper
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HealthCheck GET /health. 503 when any dependency does not answer.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(gin.H, len(h.checks))
	for name, p := range h.checks {
		if err := p.PingContext(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      "arena-match-engine",
		"dependencies": deps,
	})
}

// PingFunc adapts a plain function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}
