package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/rl-arena/arena-match-engine/internal/config"
	"github.com/rl-arena/arena-match-engine/pkg/database"
	"github.com/rl-arena/arena-match-engine/pkg/logger"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the *.sql migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db, os.DirFS(*dir))
	if err != nil {
		logger.Fatal("Migration failed", "error", err, "applied", applied)
	}

	if len(applied) == 0 {
		logger.Info("Schema is up to date")
		return
	}
	logger.Info("Migrations complete", "applied", applied)
}
