package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/config"
	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/metrics"
	"github.com/leozw/quota-guardian/internal/queue"
	"github.com/leozw/quota-guardian/internal/scheduler"
	"github.com/leozw/quota-guardian/internal/storage/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	database, err := db.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	repo := db.NewRepository(database)

	cache := redis.NewClient(cfg.Redis.URL, cfg.Redis.SnapshotTTL)
	defer cache.Close()

	jobQueue := queue.NewRedisQueue(cache.Client)
	collector := metrics.NewCollector(cfg.Mimir)

	sched := scheduler.NewScheduler(repo, jobQueue, collector, logger, cfg.Scheduler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()

	logger.Info("Scheduler started", zap.Duration("interval", cfg.Scheduler.Interval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")
	cancel()
	<-done
	logger.Info("Scheduler stopped")
}
