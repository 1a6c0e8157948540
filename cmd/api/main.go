package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/alerts"
	"github.com/leozw/quota-guardian/internal/api"
	"github.com/leozw/quota-guardian/internal/api/handlers"
	"github.com/leozw/quota-guardian/internal/config"
	"github.com/leozw/quota-guardian/internal/dashboard"
	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/jobstats"
	"github.com/leozw/quota-guardian/internal/metrics"
	"github.com/leozw/quota-guardian/internal/probe"
	"github.com/leozw/quota-guardian/internal/refresh"
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

	collector := metrics.NewCollector(cfg.Mimir)

	alertService := alerts.NewService(repo, logger, collector)
	refresher := refresh.NewService(repo, cache, alertService, collector, logger)
	dashboardService := dashboard.NewService(
		jobstats.NewCalculator(repo, logger, cfg.Scheduler.StatsWindow),
		probe.NewRunner(cfg.Probes, collector, logger),
		repo,
		cache,
		collector,
		logger,
		cfg.KPI,
	)

	handler := handlers.NewHandler(repo, cache, refresher, dashboardService, logger)
	server := api.NewServer(cfg, handler, collector.Handler(), logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go collector.StartRemoteWrite(ctx, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
