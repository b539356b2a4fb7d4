package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis (optional: event fan-out, settlement lock, quota store)
	RedisURL string

	// JWT issued by the account service
	JWTSecret string

	// CORS
	CORSAllowedOrigins []string

	// Arena
	ArenaConfigPath         string
	QuotaBackend            string // "postgres" or "redis"
	QuotaTimezone           *time.Location
	RoundDuration           time.Duration
	RoundIntermission       time.Duration
	SettlementRetryInterval time.Duration
	SettlementMaxBackoff    time.Duration

	// per player, per minute
	StartRateLimit  int
	AnswerRateLimit int

	Arena *ArenaConfig
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(getEnv("QUOTA_TIMEZONE", "UTC"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		RedisURL:                getEnv("REDIS_URL", ""),
		JWTSecret:               getEnv("JWT_SECRET", "your-secret-key"),
		CORSAllowedOrigins:      splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		ArenaConfigPath:         getEnv("ARENA_CONFIG", "config/arena.yaml"),
		QuotaBackend:            getEnv("QUOTA_BACKEND", "postgres"),
		QuotaTimezone:           loc,
		RoundDuration:           parseDuration(getEnv("ROUND_DURATION", "10s"), 10*time.Second),
		RoundIntermission:       parseDuration(getEnv("ROUND_INTERMISSION", "0s"), 0),
		SettlementRetryInterval: parseDuration(getEnv("SETTLEMENT_RETRY_INTERVAL", "30s"), 30*time.Second),
		SettlementMaxBackoff:    parseDuration(getEnv("SETTLEMENT_MAX_BACKOFF", "10m"), 10*time.Minute),
		StartRateLimit:          parseInt(getEnv("RATE_LIMIT_START", "10"), 10),
		AnswerRateLimit:         parseInt(getEnv("RATE_LIMIT_ANSWERS", "60"), 60),
	}

	if cfg.QuotaBackend != "postgres" && cfg.QuotaBackend != "redis" {
		return nil, fmt.Errorf("unknown QUOTA_BACKEND %q", cfg.QuotaBackend)
	}
	if cfg.QuotaBackend == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("QUOTA_BACKEND=redis requires REDIS_URL")
	}

	arena, err := LoadArenaConfig(cfg.ArenaConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Arena = arena

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
