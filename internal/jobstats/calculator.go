package jobstats

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/kpi"
)

type Store interface {
	JobStatsBetween(ctx context.Context, from, to time.Time) (*db.JobStats, error)
}

type Calculator struct {
	repo   Store
	logger *zap.Logger
	window time.Duration
	now    func() time.Time
}

func NewCalculator(repo Store, logger *zap.Logger, window time.Duration) *Calculator {
	return &Calculator{
		repo:   repo,
		logger: logger,
		window: window,
		now:    time.Now,
	}
}

// Source calcula o stats source da janela atual, usando a janela anterior como baseline
// de tendência
func (c *Calculator) Source(ctx context.Context) (kpi.StatsSource, error) {
	end := c.now()
	start := end.Add(-c.window)

	current, err := c.repo.JobStatsBetween(ctx, start, end)
	if err != nil {
		return kpi.StatsSource{}, fmt.Errorf("failed to get current job stats: %w", err)
	}

	source := kpi.StatsSource{JobStats: toKPI(current)}

	previous, err := c.repo.JobStatsBetween(ctx, start.Add(-c.window), start)
	if err != nil {
		// sem baseline a tendência fica estável
		c.logger.Warn("Failed to get previous job stats", zap.Error(err))
		return source, nil
	}
	if previous.Total > 0 {
		prev := toKPI(previous)
		source.Previous = &prev
	}

	return source, nil
}

// Between returns the raw counters of an arbitrary window.
func (c *Calculator) Between(ctx context.Context, from, to time.Time) (kpi.JobStats, error) {
	if !to.After(from) {
		return kpi.JobStats{}, fmt.Errorf("invalid window: %s is not after %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	stats, err := c.repo.JobStatsBetween(ctx, from, to)
	if err != nil {
		return kpi.JobStats{}, fmt.Errorf("failed to get job stats: %w", err)
	}
	return toKPI(stats), nil
}

func toKPI(s *db.JobStats) kpi.JobStats {
	return kpi.JobStats{
		TotalJobs:      s.Total,
		SuccessfulJobs: s.Succeeded,
		FailedJobs:     s.Failed,
		PendingJobs:    s.Pending,
		RunningJobs:    s.Running,
		AvgDurationMs:  s.AvgDurationMs,
	}
}
