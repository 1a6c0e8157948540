package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/leozw/quota-guardian/internal/quota"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Tenants
func (r *Repository) ListActiveTenants(ctx context.Context) ([]Tenant, error) {
	tenants := []Tenant{}
	query := `
        SELECT id, name, plan_id, has_contract, is_active, created_at, updated_at
        FROM tenants
        WHERE is_active = true
        ORDER BY id`

	err := r.db.SelectContext(ctx, &tenants, query)
	return tenants, err
}

func (r *Repository) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	query := `
        SELECT id, name, plan_id, has_contract, is_active, created_at, updated_at
        FROM tenants
        WHERE id = $1`

	err := r.db.GetContext(ctx, &t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetUsage returns every resource that has usage, a limit, or both.
func (r *Repository) GetUsage(ctx context.Context, tenantID string) ([]UsageRow, error) {
	rows := []UsageRow{}
	query := `
        SELECT COALESCE(u.resource, l.resource) AS resource,
               COALESCE(u.current_value, 0) AS current_value,
               l.limit_value
        FROM tenant_usage u
        FULL OUTER JOIN tenant_limits l
            ON l.tenant_id = u.tenant_id AND l.resource = u.resource
        WHERE COALESCE(u.tenant_id, l.tenant_id) = $1
        ORDER BY 1`

	err := r.db.SelectContext(ctx, &rows, query, tenantID)
	return rows, err
}

// LoadTenantInput assembles the evaluator input of one tenant.
func (r *Repository) LoadTenantInput(ctx context.Context, tenantID string) (quota.TenantInput, error) {
	tenant, err := r.GetTenant(ctx, tenantID)
	if err != nil {
		return quota.TenantInput{}, err
	}

	rows, err := r.GetUsage(ctx, tenantID)
	if err != nil {
		return quota.TenantInput{}, fmt.Errorf("failed to get usage: %w", err)
	}

	counters := make(map[string]quota.UsageCounter, len(rows))
	for _, row := range rows {
		counters[row.Resource] = quota.UsageCounter{
			Resource: row.Resource,
			Current:  row.CurrentValue,
			Limit:    row.LimitValue,
		}
	}

	return quota.TenantInput{
		TenantID: tenant.ID,
		Contract: tenant.Contract(),
		Counters: counters,
	}, nil
}

// Snapshots
func (r *Repository) SaveSnapshot(ctx context.Context, s *QuotaSnapshot) error {
	query := `
        INSERT INTO quota_snapshots (id, tenant_id, level, payload, evaluated_at)
        VALUES (:id, :tenant_id, :level, :payload, :evaluated_at)`

	_, err := r.db.NamedExecContext(ctx, query, s)
	return err
}

func (r *Repository) GetLatestSnapshot(ctx context.Context, tenantID string) (*QuotaSnapshot, error) {
	var s QuotaSnapshot
	query := `
        SELECT id, tenant_id, level, payload, evaluated_at
        FROM quota_snapshots
        WHERE tenant_id = $1
        ORDER BY evaluated_at DESC
        LIMIT 1`

	err := r.db.GetContext(ctx, &s, query, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) ListLatestSnapshots(ctx context.Context) ([]QuotaSnapshot, error) {
	snapshots := []QuotaSnapshot{}
	query := `
        SELECT DISTINCT ON (s.tenant_id) s.id, s.tenant_id, s.level, s.payload, s.evaluated_at
        FROM quota_snapshots s
        JOIN tenants t ON t.id = s.tenant_id
        WHERE t.is_active = true
        ORDER BY s.tenant_id, s.evaluated_at DESC`

	err := r.db.SelectContext(ctx, &snapshots, query)
	return snapshots, err
}

// Alerts
func (r *Repository) GetOpenAlert(ctx context.Context, tenantID string) (*QuotaAlert, error) {
	var a QuotaAlert
	query := `
        SELECT id, tenant_id, severity, resources, peak_ratio, escalations,
               started_at, updated_at, resolved_at
        FROM quota_alerts
        WHERE tenant_id = $1 AND resolved_at IS NULL
        ORDER BY started_at DESC
        LIMIT 1`

	err := r.db.GetContext(ctx, &a, query, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) CreateAlert(ctx context.Context, a *QuotaAlert) error {
	query := `
        INSERT INTO quota_alerts (
            id, tenant_id, severity, resources, peak_ratio, escalations,
            started_at, updated_at, resolved_at
        ) VALUES (
            :id, :tenant_id, :severity, :resources, :peak_ratio, :escalations,
            :started_at, :updated_at, :resolved_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, a)
	return err
}

func (r *Repository) UpdateAlert(ctx context.Context, a *QuotaAlert) error {
	query := `
        UPDATE quota_alerts SET
            severity = :severity,
            resources = :resources,
            peak_ratio = :peak_ratio,
            escalations = :escalations,
            updated_at = :updated_at,
            resolved_at = :resolved_at
        WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, a)
	return err
}

func (r *Repository) ListOpenAlerts(ctx context.Context) ([]QuotaAlert, error) {
	alerts := []QuotaAlert{}
	query := `
        SELECT id, tenant_id, severity, resources, peak_ratio, escalations,
               started_at, updated_at, resolved_at
        FROM quota_alerts
        WHERE resolved_at IS NULL
        ORDER BY started_at DESC`

	err := r.db.SelectContext(ctx, &alerts, query)
	return alerts, err
}

func (r *Repository) ListAlertsByTenant(ctx context.Context, tenantID string, limit int) ([]QuotaAlert, error) {
	alerts := []QuotaAlert{}
	query := `
        SELECT id, tenant_id, severity, resources, peak_ratio, escalations,
               started_at, updated_at, resolved_at
        FROM quota_alerts
        WHERE tenant_id = $1
        ORDER BY started_at DESC
        LIMIT $2`

	err := r.db.SelectContext(ctx, &alerts, query, tenantID, limit)
	return alerts, err
}

// Refresh job runs
func (r *Repository) CreateJobRun(ctx context.Context, run *JobRun) error {
	query := `
        INSERT INTO refresh_job_runs (id, tenant_id, status, enqueued_at)
        VALUES (:id, :tenant_id, :status, :enqueued_at)`

	_, err := r.db.NamedExecContext(ctx, query, run)
	return err
}

func (r *Repository) StartJobRun(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE refresh_job_runs SET status = $2, started_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, JobRunning, at)
	return err
}

func (r *Repository) FinishJobRun(ctx context.Context, id string, status JobStatus, at time.Time, duration time.Duration, jobErr error) error {
	var msg *string
	if jobErr != nil {
		s := jobErr.Error()
		msg = &s
	}
	query := `
        UPDATE refresh_job_runs
        SET status = $2, finished_at = $3, duration_ms = $4, error = $5
        WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, status, at, duration.Milliseconds(), msg)
	return err
}

// JobStatsBetween aggregates the runs enqueued in [from, to).
func (r *Repository) JobStatsBetween(ctx context.Context, from, to time.Time) (*JobStats, error) {
	var stats JobStats
	query := `
        SELECT COUNT(*) AS total,
               COUNT(*) FILTER (WHERE status = 'succeeded') AS succeeded,
               COUNT(*) FILTER (WHERE status = 'failed') AS failed,
               COUNT(*) FILTER (WHERE status = 'pending') AS pending,
               COUNT(*) FILTER (WHERE status = 'running') AS running,
               COALESCE(AVG(duration_ms) FILTER (WHERE finished_at IS NOT NULL), 0) AS avg_duration_ms
        FROM refresh_job_runs
        WHERE enqueued_at >= $1 AND enqueued_at < $2`

	if err := r.db.GetContext(ctx, &stats, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to aggregate job runs: %w", err)
	}
	return &stats, nil
}
