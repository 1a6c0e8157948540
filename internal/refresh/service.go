package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/quota"
)

type Store interface {
	LoadTenantInput(ctx context.Context, tenantID string) (quota.TenantInput, error)
	SaveSnapshot(ctx context.Context, s *db.QuotaSnapshot) error
}

type Cache interface {
	CacheSnapshot(ctx context.Context, q *quota.TenantQuota) error
	InvalidateDashboard(ctx context.Context) error
}

type AlertReconciler interface {
	Reconcile(ctx context.Context, q *quota.TenantQuota) (*db.QuotaAlert, error)
}

type Recorder interface {
	RecordQuota(q *quota.TenantQuota)
	RecordEvaluation(tenantID string, err error, d time.Duration)
}

// Service recomputes one tenant snapshot from the database: load, evaluate, persist,
// cache, alert.
type Service struct {
	repo      Store
	cache     Cache
	alerts    AlertReconciler
	metrics   Recorder
	logger    *zap.Logger
	evaluator quota.Evaluator
}

func NewService(repo Store, cache Cache, alerts AlertReconciler, metrics Recorder, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		alerts:  alerts,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *Service) Refresh(ctx context.Context, tenantID string) (*quota.TenantQuota, error) {
	start := time.Now()
	q, err := s.refresh(ctx, tenantID)
	s.metrics.RecordEvaluation(tenantID, err, time.Since(start))
	return q, err
}

func (s *Service) refresh(ctx context.Context, tenantID string) (*quota.TenantQuota, error) {
	input, err := s.repo.LoadTenantInput(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}

	q, err := s.evaluator.Evaluate(input.Contract, input.Counters)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate tenant %s: %w", tenantID, err)
	}
	q.TenantID = input.TenantID

	snapshot, err := db.NewQuotaSnapshot(uuid.New().String(), q)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	// cache e alertas não invalidam o snapshot já persistido
	if err := s.cache.CacheSnapshot(ctx, q); err != nil {
		s.logger.Warn("Failed to cache snapshot", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	if err := s.cache.InvalidateDashboard(ctx); err != nil {
		s.logger.Warn("Failed to invalidate dashboard", zap.Error(err))
	}
	if _, err := s.alerts.Reconcile(ctx, q); err != nil {
		s.logger.Error("Failed to reconcile quota alert", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	s.metrics.RecordQuota(q)

	s.logger.Debug("Refreshed tenant quota",
		zap.String("tenant_id", tenantID),
		zap.String("level", q.Level.String()),
		zap.Int("resources", len(q.Resources)),
	)

	return q, nil
}
