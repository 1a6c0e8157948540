package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozw/quota-guardian/internal/config"
	"github.com/leozw/quota-guardian/internal/kpi"
	"github.com/leozw/quota-guardian/internal/quota"
)

func gauge(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.Metric {
			if matches(m, labels) {
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func matches(m *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, l := range m.Label {
		if v, ok := labels[l.GetName()]; ok {
			if v != l.GetValue() {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}

func evaluated(t *testing.T, tenant string, counters map[string]quota.UsageCounter) *quota.TenantQuota {
	t.Helper()
	q, err := quota.Evaluate(quota.ContractInfo{HasContract: true}, counters)
	require.NoError(t, err)
	q.TenantID = tenant
	return q
}

func TestNewCollector_CustomRegistry(t *testing.T) {
	c := NewCollector(config.MimirConfig{})
	defaultFamilies, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	c.RecordQueueSize(3)
	for _, f := range defaultFamilies {
		assert.NotEqual(t, "quota_refresh_queue_size", f.GetName())
	}
	v, ok := gauge(t, c.Registry(), "quota_refresh_queue_size", nil)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestRecordQuota(t *testing.T) {
	c := NewCollector(config.MimirConfig{})
	limit := int64(10)

	c.RecordQuota(evaluated(t, "acme", map[string]quota.UsageCounter{
		"users":   {Resource: "users", Current: 11, Limit: &limit},
		"storage": {Resource: "storage", Current: 3},
	}))

	v, ok := gauge(t, c.Registry(), "quota_resource_utilization_ratio", map[string]string{"tenant_id": "acme", "resource": "users"})
	require.True(t, ok)
	assert.InDelta(t, 1.1, v, 1e-9)

	v, _ = gauge(t, c.Registry(), "quota_resource_over_limit", map[string]string{"tenant_id": "acme", "resource": "users"})
	assert.Equal(t, 1.0, v)

	_, ok = gauge(t, c.Registry(), "quota_resource_limit", map[string]string{"tenant_id": "acme", "resource": "storage"})
	assert.False(t, ok, "unlimited resources export no limit")

	v, _ = gauge(t, c.Registry(), "quota_tenant_alert_level", map[string]string{"tenant_id": "acme"})
	assert.Equal(t, 2.0, v)

	// a later snapshot without storage drops its series
	c.RecordQuota(evaluated(t, "acme", map[string]quota.UsageCounter{
		"users": {Resource: "users", Current: 1, Limit: &limit},
	}))
	_, ok = gauge(t, c.Registry(), "quota_resource_usage", map[string]string{"tenant_id": "acme", "resource": "storage"})
	assert.False(t, ok)
	v, _ = gauge(t, c.Registry(), "quota_tenant_alert_level", map[string]string{"tenant_id": "acme"})
	assert.Equal(t, 0.0, v)
}

func TestRecordAlerts(t *testing.T) {
	c := NewCollector(config.MimirConfig{})

	c.RecordAlertOpened("acme", "warning")
	c.RecordAlertEscalated("acme", "warning", "critical")

	v, _ := gauge(t, c.Registry(), "quota_alerts_active", map[string]string{"tenant_id": "acme", "severity": "warning"})
	assert.Equal(t, 0.0, v)
	v, _ = gauge(t, c.Registry(), "quota_alerts_active", map[string]string{"tenant_id": "acme", "severity": "critical"})
	assert.Equal(t, 1.0, v)

	c.RecordAlertResolved("acme", "critical", 30*time.Minute)
	v, _ = gauge(t, c.Registry(), "quota_alerts_active", map[string]string{"tenant_id": "acme", "severity": "critical"})
	assert.Equal(t, 0.0, v)
}

func TestRecordDashboard(t *testing.T) {
	c := NewCollector(config.MimirConfig{})
	d := kpi.Consolidate(map[string]kpi.Source{
		"stats": kpi.StatsSource{JobStats: kpi.JobStats{TotalJobs: 10, SuccessfulJobs: 5, FailedJobs: 5}},
	}, kpi.Config{Thresholds: map[string]kpi.Threshold{"success_rate": {Warning: 90, Critical: 70}}})

	c.RecordDashboard(d)

	v, ok := gauge(t, c.Registry(), "dashboard_kpi_value", map[string]string{"kpi_id": "success_rate"})
	require.True(t, ok)
	assert.Equal(t, 50.0, v)

	v, _ = gauge(t, c.Registry(), "dashboard_kpi_classification", map[string]string{"kpi_id": "success_rate"})
	assert.Equal(t, 2.0, v)
	v, _ = gauge(t, c.Registry(), "dashboard_kpi_classification", map[string]string{"kpi_id": "failed_jobs"})
	assert.Equal(t, -1.0, v)

	v, _ = gauge(t, c.Registry(), "dashboard_system_status", nil)
	assert.Equal(t, 2.0, v)
}

func TestWriteToMimir(t *testing.T) {
	var mu sync.Mutex
	received := map[string]*prompb.WriteRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/push", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var req prompb.WriteRequest
		require.NoError(t, req.Unmarshal(raw))

		mu.Lock()
		received[r.Header.Get("X-Scope-OrgID")] = &req
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewCollector(config.MimirConfig{URL: srv.URL, TenantHeader: "X-Scope-OrgID", BatchSize: 100, AuthToken: "token"})
	limit := int64(10)
	c.RecordQuota(evaluated(t, "acme", map[string]quota.UsageCounter{"users": {Resource: "users", Current: 9, Limit: &limit}}))
	c.RecordQuota(evaluated(t, "globex", map[string]quota.UsageCounter{"users": {Resource: "users", Current: 1, Limit: &limit}}))
	c.RecordQueueSize(7)

	require.NoError(t, c.writeToMimir(context.Background()))

	require.Len(t, received, 2)
	for tenant, req := range received {
		for _, ts := range req.Timeseries {
			var name, owner string
			for _, l := range ts.Labels {
				switch l.Name {
				case "__name__":
					name = l.Value
				case "tenant_id":
					owner = l.Value
				}
			}
			assert.Equal(t, tenant, owner)
			assert.True(t, strings.HasPrefix(name, "quota_"), name)
			assert.NotEqual(t, "quota_refresh_queue_size", name)
		}
	}
}

func TestWriteToMimir_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCollector(config.MimirConfig{URL: srv.URL, TenantHeader: "X-Scope-OrgID", BatchSize: 10})
	c.RecordAlertOpened("acme", "warning")

	err := c.writeToMimir(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
