package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/quota"
)

type Store interface {
	GetOpenAlert(ctx context.Context, tenantID string) (*db.QuotaAlert, error)
	CreateAlert(ctx context.Context, a *db.QuotaAlert) error
	UpdateAlert(ctx context.Context, a *db.QuotaAlert) error
}

type Recorder interface {
	RecordAlertOpened(tenantID, severity string)
	RecordAlertEscalated(tenantID, from, to string)
	RecordAlertResolved(tenantID, severity string, open time.Duration)
}

type Service struct {
	repo    Store
	logger  *zap.Logger
	metrics Recorder
	now     func() time.Time
}

func NewService(repo Store, logger *zap.Logger, metrics Recorder) *Service {
	return &Service{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Reconcile aligns the tenant's open alert with a fresh snapshot: it opens one when the
// level rises above none, changes its severity when the level moves and resolves it when
// the level returns to none. It returns the alert touched, or nil when nothing is open.
func (s *Service) Reconcile(ctx context.Context, q *quota.TenantQuota) (*db.QuotaAlert, error) {
	open, err := s.repo.GetOpenAlert(ctx, q.TenantID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to get open alert: %w", err)
	}

	now := s.now()

	if q.Level == quota.LevelNone {
		if open == nil {
			return nil, nil
		}
		return open, s.resolve(ctx, open, now)
	}

	if open == nil {
		return s.open(ctx, q, now)
	}

	previous := open.Severity
	open.Resources = alertingResources(q)
	open.UpdatedAt = now
	if peak, ok := q.PeakRatio(); ok && (open.PeakRatio == nil || peak > *open.PeakRatio) {
		open.PeakRatio = &peak
	}
	if previous != q.Level.String() {
		open.Severity = q.Level.String()
		open.Escalations++
	}

	if err := s.repo.UpdateAlert(ctx, open); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	if previous != open.Severity {
		s.metrics.RecordAlertEscalated(q.TenantID, previous, open.Severity)
		s.logger.Info("Quota alert severity changed",
			zap.String("alert_id", open.ID),
			zap.String("tenant_id", q.TenantID),
			zap.String("from", previous),
			zap.String("to", open.Severity),
		)
	}

	return open, nil
}

func (s *Service) open(ctx context.Context, q *quota.TenantQuota, now time.Time) (*db.QuotaAlert, error) {
	alert := &db.QuotaAlert{
		ID:        uuid.New().String(),
		TenantID:  q.TenantID,
		Severity:  q.Level.String(),
		Resources: alertingResources(q),
		StartedAt: now,
		UpdatedAt: now,
	}
	if peak, ok := q.PeakRatio(); ok {
		alert.PeakRatio = &peak
	}

	if err := s.repo.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.metrics.RecordAlertOpened(q.TenantID, alert.Severity)
	s.logger.Info("Opened quota alert",
		zap.String("alert_id", alert.ID),
		zap.String("tenant_id", q.TenantID),
		zap.String("severity", alert.Severity),
		zap.Strings("resources", alert.Resources),
	)

	return alert, nil
}

func (s *Service) resolve(ctx context.Context, alert *db.QuotaAlert, now time.Time) error {
	alert.ResolvedAt = &now
	alert.UpdatedAt = now

	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}

	openFor := now.Sub(alert.StartedAt)
	s.metrics.RecordAlertResolved(alert.TenantID, alert.Severity, openFor)
	s.logger.Info("Resolved quota alert",
		zap.String("alert_id", alert.ID),
		zap.String("tenant_id", alert.TenantID),
		zap.Duration("open_for", openFor),
	)

	return nil
}

func alertingResources(q *quota.TenantQuota) db.StringSlice {
	names := db.StringSlice{}
	for name, r := range q.Resources {
		if r.Level != quota.LevelNone {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
