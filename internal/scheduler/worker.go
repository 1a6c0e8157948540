package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/queue"
	"github.com/leozw/quota-guardian/internal/quota"
)

// finishTimeout bounds the final job run update, which outlives a cancelled worker context.
const finishTimeout = 5 * time.Second

type JobSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.Job, error)
}

type JobRunStore interface {
	StartJobRun(ctx context.Context, id string, at time.Time) error
	FinishJobRun(ctx context.Context, id string, status db.JobStatus, at time.Time, duration time.Duration, jobErr error) error
}

type Refresher interface {
	Refresh(ctx context.Context, tenantID string) (*quota.TenantQuota, error)
}

type JobRecorder interface {
	RecordJob(status string, d time.Duration)
}

type Worker struct {
	id        int
	queue     JobSource
	runs      JobRunStore
	refresher Refresher
	metrics   JobRecorder
	logger    *zap.Logger
	timeout   time.Duration
}

func NewWorker(id int, q JobSource, runs JobRunStore, refresher Refresher, metrics JobRecorder, logger *zap.Logger, popTimeout time.Duration) *Worker {
	return &Worker{
		id:        id,
		queue:     q,
		runs:      runs,
		refresher: refresher,
		metrics:   metrics,
		logger:    logger.With(zap.Int("worker_id", id)),
		timeout:   popTimeout,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started")

	for {
		if ctx.Err() != nil {
			w.logger.Info("Worker stopped")
			return
		}

		job, err := w.queue.Pop(ctx, w.timeout)
		if err != nil {
			if errors.Is(err, queue.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			w.logger.Error("Failed to pop job", zap.Error(err))
			// evita loop quente com o redis fora
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	start := time.Now()
	if job.Type != queue.JobTypeQuotaRefresh {
		w.logger.Warn("Skipping unknown job type", zap.String("job_id", job.ID), zap.String("type", job.Type))
		w.finish(ctx, job, db.JobFailed, 0, fmt.Errorf("unknown job type %q", job.Type))
		return
	}

	if err := w.runs.StartJobRun(ctx, job.ID, start); err != nil {
		w.logger.Warn("Failed to mark job running", zap.String("job_id", job.ID), zap.Error(err))
	}

	_, err := w.refresher.Refresh(ctx, job.TenantID)
	duration := time.Since(start)

	status := db.JobSucceeded
	if err != nil {
		status = db.JobFailed
		w.logger.Error("Quota refresh failed",
			zap.String("job_id", job.ID),
			zap.String("tenant_id", job.TenantID),
			zap.Error(err),
		)
	}

	w.finish(ctx, job, status, duration, err)

	w.logger.Debug("Job completed",
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID),
		zap.String("status", string(status)),
		zap.Duration("duration", duration),
	)
}

// finish records the outcome even when ctx was cancelled mid-job, so no run is left
// pending or running.
func (w *Worker) finish(ctx context.Context, job *queue.Job, status db.JobStatus, duration time.Duration, jobErr error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err := w.runs.FinishJobRun(fctx, job.ID, status, time.Now(), duration, jobErr); err != nil {
		w.logger.Warn("Failed to finish job run", zap.String("job_id", job.ID), zap.Error(err))
	}
	w.metrics.RecordJob(string(status), duration)
}

// Pool runs n workers until ctx is done.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

func NewPool(n int, newWorker func(id int) *Worker) *Pool {
	p := &Pool{workers: make([]*Worker, n)}
	for i := 0; i < n; i++ {
		p.workers[i] = newWorker(i)
	}
	return p
}

func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Start(ctx)
		}(w)
	}
	p.wg.Wait()
}
