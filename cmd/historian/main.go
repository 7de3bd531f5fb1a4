// cmd/historian/main.go

// cmd/historian is an asynchronous service that pops room activity from the Redis queue,
// persists it to PostgreSQL in batches and marks inactive rooms abandoned.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/realms/internal/cache"
	"github.com/jason-s-yu/realms/internal/config"
	"github.com/jason-s-yu/realms/internal/database"
	"github.com/jason-s-yu/realms/internal/historian"
	"github.com/jason-s-yu/realms/internal/migrations"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Read()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.Storage.Driver != "postgres" {
		logger.Fatal("historian requires the postgres storage driver")
	}
	if cfg.Redis.Addr == "" {
		logger.Fatal("historian requires redis.addr")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	url := cfg.PostgresURL()
	if cfg.Postgres.Migrate {
		if err := migrations.Migrate(url); err != nil {
			logger.Fatalf("migrations: %v", err)
		}
	}
	db, err := database.Connect(ctx, url)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	queue := cache.ActivityQueue{Client: rdb, Name: cfg.Redis.ActivityQueue}
	svc := historian.New(queue, db, cfg.Historian, logger)

	logger.Infof("Historian consuming %q", cfg.Redis.ActivityQueue)
	svc.Run(ctx)
	logger.Info("Historian shutting down")
}
