package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/config"
	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/queue"
)

type TenantStore interface {
	ListActiveTenants(ctx context.Context) ([]db.Tenant, error)
	CreateJobRun(ctx context.Context, run *db.JobRun) error
}

type JobQueue interface {
	Push(ctx context.Context, job *queue.Job) error
	Length(ctx context.Context) (int64, error)
}

type QueueRecorder interface {
	RecordQueueSize(n int64)
}

// Scheduler enqueues one refresh job per active tenant on every tick. Each tick is an
// independent full recomputation.
type Scheduler struct {
	repo    TenantStore
	queue   JobQueue
	metrics QueueRecorder
	logger  *zap.Logger
	config  config.SchedulerConfig
	now     func() time.Time
}

func NewScheduler(repo TenantStore, q JobQueue, metrics QueueRecorder, logger *zap.Logger, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		repo:    repo,
		queue:   q,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
		now:     time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler", zap.Duration("interval", s.config.Interval))

	s.scheduleRefresh(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler")
			return
		case <-ticker.C:
			s.scheduleRefresh(ctx)
		}
	}
}

// scheduleRefresh returns the number of jobs enqueued.
func (s *Scheduler) scheduleRefresh(ctx context.Context) int {
	tenants, err := s.repo.ListActiveTenants(ctx)
	if err != nil {
		s.logger.Error("Failed to list active tenants", zap.Error(err))
		return 0
	}

	enqueued := 0
	for _, tenant := range tenants {
		now := s.now()
		run := &db.JobRun{
			ID:         uuid.New().String(),
			TenantID:   tenant.ID,
			Status:     db.JobPending,
			EnqueuedAt: now,
		}
		if err := s.repo.CreateJobRun(ctx, run); err != nil {
			s.logger.Error("Failed to create job run", zap.String("tenant_id", tenant.ID), zap.Error(err))
			continue
		}

		job := &queue.Job{
			ID:        run.ID,
			Type:      queue.JobTypeQuotaRefresh,
			TenantID:  tenant.ID,
			CreatedAt: now,
		}
		if err := s.queue.Push(ctx, job); err != nil {
			s.logger.Warn("Failed to enqueue refresh, dropping",
				zap.String("tenant_id", tenant.ID),
				zap.Error(err),
			)
			continue
		}
		enqueued++

		s.logger.Debug("Scheduled refresh", zap.String("tenant_id", tenant.ID), zap.String("job_id", job.ID))
	}

	if size, err := s.queue.Length(ctx); err == nil {
		s.metrics.RecordQueueSize(size)
	}

	s.logger.Info("Scheduled quota refresh",
		zap.Int("tenants", len(tenants)),
		zap.Int("enqueued", enqueued),
	)
	return enqueued
}
