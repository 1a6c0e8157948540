package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/kpi"
	"github.com/leozw/quota-guardian/internal/quota"
	"github.com/leozw/quota-guardian/internal/storage/redis"
)

type StatsProvider interface {
	Source(ctx context.Context) (kpi.StatsSource, error)
}

type HealthProvider interface {
	Run(ctx context.Context) kpi.HealthSource
}

type SnapshotStore interface {
	ListLatestSnapshots(ctx context.Context) ([]db.QuotaSnapshot, error)
}

type Cache interface {
	GetCachedDashboard(ctx context.Context) (*kpi.DashboardData, error)
	CacheDashboard(ctx context.Context, d *kpi.DashboardData) error
}

type Recorder interface {
	RecordDashboard(d *kpi.DashboardData)
}

type Service struct {
	stats        StatsProvider
	health       HealthProvider
	snapshots    SnapshotStore
	cache        Cache
	metrics      Recorder
	logger       *zap.Logger
	config       kpi.Config
	consolidator kpi.Consolidator
}

func NewService(stats StatsProvider, health HealthProvider, snapshots SnapshotStore, cache Cache, metrics Recorder, logger *zap.Logger, cfg kpi.Config) *Service {
	return &Service{
		stats:     stats,
		health:    health,
		snapshots: snapshots,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		config:    cfg,
	}
}

// Get returns the cached fleet dashboard, rebuilding it on a miss.
func (s *Service) Get(ctx context.Context) (*kpi.DashboardData, error) {
	d, err := s.cache.GetCachedDashboard(ctx)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, redis.ErrCacheMiss) {
		s.logger.Warn("Failed to read cached dashboard", zap.Error(err))
	}
	return s.Build(ctx)
}

// Build fetches every source concurrently and consolidates once all fetches resolved.
// A failed fetch leaves its source out of the pass.
func (s *Service) Build(ctx context.Context) (*kpi.DashboardData, error) {
	var (
		stats   *kpi.StatsSource
		health  *kpi.HealthSource
		tenants []quota.TenantQuota
		quotaOK bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		src, err := s.stats.Source(gctx)
		if err != nil {
			s.logger.Warn("Stats source unavailable", zap.Error(err))
			return nil
		}
		stats = &src
		return nil
	})

	g.Go(func() error {
		src := s.health.Run(gctx)
		health = &src
		return nil
	})

	g.Go(func() error {
		snaps, err := s.snapshots.ListLatestSnapshots(gctx)
		if err != nil {
			s.logger.Warn("Quota snapshots unavailable", zap.Error(err))
			return nil
		}
		tenants = make([]quota.TenantQuota, 0, len(snaps))
		for i := range snaps {
			q, err := snaps[i].Quota()
			if err != nil {
				s.logger.Warn("Skipping unreadable snapshot", zap.String("snapshot_id", snaps[i].ID), zap.Error(err))
				continue
			}
			tenants = append(tenants, *q)
		}
		quotaOK = true
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch dashboard sources: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sources := make(map[string]kpi.Source, 3)
	if stats != nil {
		sources[string(kpi.SourceStats)] = *stats
	}
	if health != nil {
		sources[string(kpi.SourceHealth)] = *health
	}
	if quotaOK {
		sources[string(kpi.SourceQuotas)] = kpi.QuotaSource{Tenants: tenants}
	}

	d := s.consolidate(sources)

	if err := s.cache.CacheDashboard(ctx, d); err != nil {
		s.logger.Warn("Failed to cache dashboard", zap.Error(err))
	}

	return d, nil
}

// Consolidate runs a pass over caller supplied bundles with the process KPI config.
func (s *Service) Consolidate(raw map[string]json.RawMessage) *kpi.DashboardData {
	return s.consolidate(kpi.ParseSources(raw))
}

func (s *Service) consolidate(sources map[string]kpi.Source) *kpi.DashboardData {
	d := s.consolidator.Consolidate(sources, s.config)

	for _, n := range d.Notices {
		s.logger.Warn("Consolidation notice",
			zap.String("kind", string(n.Kind)),
			zap.String("source", n.Source),
			zap.String("metric", n.Metric),
			zap.String("detail", n.Detail),
		)
	}
	if s.metrics != nil {
		s.metrics.RecordDashboard(d)
	}
	return d
}
