package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/kpi"
	"github.com/leozw/quota-guardian/internal/quota"
)

type Repository interface {
	Ping(ctx context.Context) error
	ListLatestSnapshots(ctx context.Context) ([]db.QuotaSnapshot, error)
	GetLatestSnapshot(ctx context.Context, tenantID string) (*db.QuotaSnapshot, error)
	ListOpenAlerts(ctx context.Context) ([]db.QuotaAlert, error)
	ListAlertsByTenant(ctx context.Context, tenantID string, limit int) ([]db.QuotaAlert, error)
}

type SnapshotCache interface {
	GetCachedSnapshot(ctx context.Context, tenantID string) (*quota.TenantQuota, error)
}

type Refresher interface {
	Refresh(ctx context.Context, tenantID string) (*quota.TenantQuota, error)
}

type Dashboard interface {
	Get(ctx context.Context) (*kpi.DashboardData, error)
	Consolidate(raw map[string]json.RawMessage) *kpi.DashboardData
}

type Handler struct {
	repo      Repository
	cache     SnapshotCache
	refresher Refresher
	dashboard Dashboard
	evaluator quota.Evaluator
	logger    *zap.Logger
}

func NewHandler(repo Repository, cache SnapshotCache, refresher Refresher, dashboard Dashboard, logger *zap.Logger) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		refresher: refresher,
		dashboard: dashboard,
		logger:    logger,
	}
}
