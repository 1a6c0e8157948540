package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/alerts"
	"github.com/leozw/quota-guardian/internal/config"
	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/metrics"
	"github.com/leozw/quota-guardian/internal/queue"
	"github.com/leozw/quota-guardian/internal/refresh"
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

	alertService := alerts.NewService(repo, logger, collector)
	refresher := refresh.NewService(repo, cache, alertService, collector, logger)

	pool := scheduler.NewPool(cfg.Scheduler.WorkerCount, func(id int) *scheduler.Worker {
		return scheduler.NewWorker(id, jobQueue, repo, refresher, collector, logger, cfg.Scheduler.QueueTimeout)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()

	go collector.StartRemoteWrite(ctx, logger)

	logger.Info("Worker started", zap.Int("worker_count", cfg.Scheduler.WorkerCount))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	<-done
	logger.Info("Worker exited")
}
