package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leozw/quota-guardian/internal/quota"
)

type Tenant struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	PlanID      *string   `json:"plan_id,omitempty" db:"plan_id"`
	HasContract bool      `json:"has_contract" db:"has_contract"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

func (t *Tenant) Contract() quota.ContractInfo {
	c := quota.ContractInfo{HasContract: t.HasContract}
	if t.PlanID != nil {
		c.PlanID = *t.PlanID
	}
	return c
}

// UsageRow joins a resource's usage with its contracted limit. LimitValue is NULL when the
// plan does not cap the resource.
type UsageRow struct {
	Resource     string `db:"resource"`
	CurrentValue int64  `db:"current_value"`
	LimitValue   *int64 `db:"limit_value"`
}

type QuotaSnapshot struct {
	ID          string          `json:"id" db:"id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	Level       string          `json:"level" db:"level"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	EvaluatedAt time.Time       `json:"evaluated_at" db:"evaluated_at"`
}

func NewQuotaSnapshot(id string, q *quota.TenantQuota) (*QuotaSnapshot, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quota snapshot: %w", err)
	}
	return &QuotaSnapshot{
		ID:          id,
		TenantID:    q.TenantID,
		Level:       q.Level.String(),
		Payload:     payload,
		EvaluatedAt: q.EvaluatedAt,
	}, nil
}

func (s *QuotaSnapshot) Quota() (*quota.TenantQuota, error) {
	var q quota.TenantQuota
	if err := json.Unmarshal(s.Payload, &q); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", s.ID, err)
	}
	return &q, nil
}

type QuotaAlert struct {
	ID          string      `json:"id" db:"id"`
	TenantID    string      `json:"tenant_id" db:"tenant_id"`
	Severity    string      `json:"severity" db:"severity"`
	Resources   StringSlice `json:"resources" db:"resources"`
	PeakRatio   *float64    `json:"peak_ratio,omitempty" db:"peak_ratio"`
	Escalations int         `json:"escalations" db:"escalations"`
	StartedAt   time.Time   `json:"started_at" db:"started_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

type JobRun struct {
	ID         string     `json:"id" db:"id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	Status     JobStatus  `json:"status" db:"status"`
	EnqueuedAt time.Time  `json:"enqueued_at" db:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	DurationMs *int64     `json:"duration_ms,omitempty" db:"duration_ms"`
	Error      *string    `json:"error,omitempty" db:"error"`
}

// JobStats aggregates refresh_job_runs over a window.
type JobStats struct {
	Total         int64   `db:"total"`
	Succeeded     int64   `db:"succeeded"`
	Failed        int64   `db:"failed"`
	Pending       int64   `db:"pending"`
	Running       int64   `db:"running"`
	AvgDurationMs float64 `db:"avg_duration_ms"`
}

// Custom types for PostgreSQL JSONB
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return fmt.Errorf("unsupported type %T for StringSlice", value)
}
