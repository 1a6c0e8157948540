package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/quota"
)

type memoryStore struct {
	open    map[string]*db.QuotaAlert
	created []*db.QuotaAlert
	updated []db.QuotaAlert
	getErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{open: map[string]*db.QuotaAlert{}}
}

func (m *memoryStore) GetOpenAlert(ctx context.Context, tenantID string) (*db.QuotaAlert, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	a, ok := m.open[tenantID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryStore) CreateAlert(ctx context.Context, a *db.QuotaAlert) error {
	m.created = append(m.created, a)
	cp := *a
	m.open[a.TenantID] = &cp
	return nil
}

func (m *memoryStore) UpdateAlert(ctx context.Context, a *db.QuotaAlert) error {
	m.updated = append(m.updated, *a)
	if a.ResolvedAt != nil {
		delete(m.open, a.TenantID)
		return nil
	}
	cp := *a
	m.open[a.TenantID] = &cp
	return nil
}

type event struct{ kind, tenant, a, b string }

type fakeRecorder struct {
	events []event
	opened time.Duration
}

func (f *fakeRecorder) RecordAlertOpened(tenantID, severity string) {
	f.events = append(f.events, event{"opened", tenantID, severity, ""})
}

func (f *fakeRecorder) RecordAlertEscalated(tenantID, from, to string) {
	f.events = append(f.events, event{"escalated", tenantID, from, to})
}

func (f *fakeRecorder) RecordAlertResolved(tenantID, severity string, open time.Duration) {
	f.events = append(f.events, event{"resolved", tenantID, severity, ""})
	f.opened = open
}

func snapshot(t *testing.T, current int64) *quota.TenantQuota {
	t.Helper()
	limit := int64(100)
	q, err := quota.Evaluate(quota.ContractInfo{HasContract: true}, map[string]quota.UsageCounter{
		"api_calls": {Resource: "api_calls", Current: current, Limit: &limit},
		"seats":     {Resource: "seats", Current: 1},
	})
	require.NoError(t, err)
	q.TenantID = "acme"
	return q
}

func newService(store Store, rec Recorder, clock *time.Time) *Service {
	s := NewService(store, zap.NewNop(), rec)
	s.now = func() time.Time { return *clock }
	return s
}

func TestReconcile_Lifecycle(t *testing.T) {
	store := newMemoryStore()
	rec := &fakeRecorder{}
	clock := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc := newService(store, rec, &clock)
	ctx := context.Background()

	// below warning: nothing to do
	alert, err := svc.Reconcile(ctx, snapshot(t, 10))
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Empty(t, store.created)

	// warning opens an alert
	alert, err = svc.Reconcile(ctx, snapshot(t, 85))
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "warning", alert.Severity)
	assert.Equal(t, db.StringSlice{"api_calls"}, alert.Resources)
	require.NotNil(t, alert.PeakRatio)
	assert.InDelta(t, 0.85, *alert.PeakRatio, 1e-9)
	require.Len(t, store.created, 1)

	// escalation to critical
	clock = clock.Add(10 * time.Minute)
	alert, err = svc.Reconcile(ctx, snapshot(t, 120))
	require.NoError(t, err)
	assert.Equal(t, "critical", alert.Severity)
	assert.Equal(t, 1, alert.Escalations)
	assert.InDelta(t, 1.2, *alert.PeakRatio, 1e-9)

	// de-escalation keeps the peak
	clock = clock.Add(10 * time.Minute)
	alert, err = svc.Reconcile(ctx, snapshot(t, 90))
	require.NoError(t, err)
	assert.Equal(t, "warning", alert.Severity)
	assert.Equal(t, 2, alert.Escalations)
	assert.InDelta(t, 1.2, *alert.PeakRatio, 1e-9)

	// back to none resolves
	clock = clock.Add(10 * time.Minute)
	alert, err = svc.Reconcile(ctx, snapshot(t, 5))
	require.NoError(t, err)
	require.NotNil(t, alert)
	require.NotNil(t, alert.ResolvedAt)
	assert.Empty(t, store.open)

	assert.Equal(t, []event{
		{"opened", "acme", "warning", ""},
		{"escalated", "acme", "warning", "critical"},
		{"escalated", "acme", "critical", "warning"},
		{"resolved", "acme", "warning", ""},
	}, rec.events)
	assert.Equal(t, 30*time.Minute, rec.opened)
}

func TestReconcile_SameLevelIsNotEscalation(t *testing.T) {
	store := newMemoryStore()
	rec := &fakeRecorder{}
	clock := time.Now()
	svc := newService(store, rec, &clock)

	_, err := svc.Reconcile(context.Background(), snapshot(t, 85))
	require.NoError(t, err)
	alert, err := svc.Reconcile(context.Background(), snapshot(t, 95))
	require.NoError(t, err)

	assert.Equal(t, 0, alert.Escalations)
	assert.InDelta(t, 0.95, *alert.PeakRatio, 1e-9)
	assert.Len(t, rec.events, 1)
}

func TestReconcile_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("connection reset")
	clock := time.Now()

	_, err := newService(store, &fakeRecorder{}, &clock).Reconcile(context.Background(), snapshot(t, 85))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get open alert")
}
