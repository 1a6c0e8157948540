package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leozw/quota-guardian/internal/config"
	"github.com/leozw/quota-guardian/internal/kpi"
	"github.com/leozw/quota-guardian/internal/quota"
)

type Collector struct {
	config   *config.MimirConfig
	registry *prometheus.Registry
	client   *http.Client

	// Quota
	resourceUsage      *prometheus.GaugeVec
	resourceLimit      *prometheus.GaugeVec
	resourceRatio      *prometheus.GaugeVec
	resourceOverLimit  *prometheus.GaugeVec
	tenantLevel        *prometheus.GaugeVec
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram

	// Alerts
	alertsTotal       *prometheus.CounterVec
	alertsActive      *prometheus.GaugeVec
	alertEscalations  *prometheus.CounterVec
	alertOpenDuration *prometheus.HistogramVec

	// Dashboard
	kpiValue          *prometheus.GaugeVec
	kpiClassification *prometheus.GaugeVec
	dashboardStatus   prometheus.Gauge
	dashboardNotices  *prometheus.CounterVec

	// Workers e probes
	jobsTotal     *prometheus.CounterVec
	jobDuration   prometheus.Histogram
	queueSize     prometheus.Gauge
	probeUp       *prometheus.GaugeVec
	probeDuration *prometheus.HistogramVec
}

func NewCollector(cfg config.MimirConfig) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		config:   &cfg,
		registry: reg,
		client:   &http.Client{Timeout: 30 * time.Second},

		resourceUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quota_resource_usage",
				Help: "Current usage of a tenant resource",
			},
			[]string{"tenant_id", "resource"},
		),

		resourceLimit: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quota_resource_limit",
				Help: "Contracted limit of a tenant resource (absent when unlimited)",
			},
			[]string{"tenant_id", "resource"},
		),

		resourceRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quota_resource_utilization_ratio",
				Help: "Usage divided by limit for capped resources",
			},
			[]string{"tenant_id", "resource"},
		),

		resourceOverLimit: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quota_resource_over_limit",
				Help: "Whether usage is strictly above the limit (1) or not (0)",
			},
			[]string{"tenant_id", "resource"},
		),

		tenantLevel: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quota_tenant_alert_level",
				Help: "Tenant alert level: 0 none, 1 warning, 2 critical",
			},
			[]string{"tenant_id"},
		),

		evaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_evaluations_total",
				Help: "Total number of tenant quota evaluations",
			},
			[]string{"tenant_id", "result"},
		),

		evaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quota_evaluation_duration_seconds",
				Help:    "Duration of a tenant refresh, load to persist",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),

		alertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_alerts_total",
				Help: "Total number of quota alerts opened",
			},
			[]string{"tenant_id", "severity"},
		),

		alertsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quota_alerts_active",
				Help: "Open quota alerts",
			},
			[]string{"tenant_id", "severity"},
		),

		alertEscalations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_alert_severity_changes_total",
				Help: "Severity changes of open quota alerts",
			},
			[]string{"tenant_id", "from", "to"},
		),

		alertOpenDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quota_alert_open_minutes",
				Help:    "Minutes a quota alert stayed open",
				Buckets: []float64{1, 5, 15, 60, 240, 1440, 10080},
			},
			[]string{"tenant_id"},
		),

		kpiValue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dashboard_kpi_value",
				Help: "Numeric value of a consolidated KPI",
			},
			[]string{"kpi_id", "category"},
		),

		kpiClassification: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dashboard_kpi_classification",
				Help: "KPI classification: -1 unclassified, 0 healthy, 1 warning, 2 critical",
			},
			[]string{"kpi_id", "category"},
		),

		dashboardStatus: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashboard_system_status",
				Help: "Overall dashboard status: 0 healthy, 1 warning, 2 critical",
			},
		),

		dashboardNotices: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_notices_total",
				Help: "Notices raised during consolidation",
			},
			[]string{"kind"},
		),

		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_refresh_jobs_total",
				Help: "Refresh jobs processed by workers",
			},
			[]string{"status"},
		),

		jobDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quota_refresh_job_duration_seconds",
				Help:    "Duration of refresh jobs",
				Buckets: prometheus.DefBuckets,
			},
		),

		queueSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "quota_refresh_queue_size",
				Help: "Jobs waiting in the refresh queue",
			},
		),

		probeUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dependency_probe_up",
				Help: "Whether the dependency probe succeeded (1) or not (0)",
			},
			[]string{"probe", "type"},
		),

		probeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dependency_probe_duration_seconds",
				Help:    "Duration of dependency probes",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"probe", "type"},
		),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordQuota exports a tenant snapshot. Stale series of resources that disappeared from
// the tenant are dropped first.
func (c *Collector) RecordQuota(q *quota.TenantQuota) {
	tenant := prometheus.Labels{"tenant_id": q.TenantID}
	c.resourceUsage.DeletePartialMatch(tenant)
	c.resourceLimit.DeletePartialMatch(tenant)
	c.resourceRatio.DeletePartialMatch(tenant)
	c.resourceOverLimit.DeletePartialMatch(tenant)

	for name, r := range q.Resources {
		labels := prometheus.Labels{"tenant_id": q.TenantID, "resource": name}
		c.resourceUsage.With(labels).Set(float64(r.Current))
		if r.Limit != nil {
			c.resourceLimit.With(labels).Set(float64(*r.Limit))
		}
		if r.Ratio != nil {
			c.resourceRatio.With(labels).Set(*r.Ratio)
		}
		over := 0.0
		if r.OverLimit {
			over = 1.0
		}
		c.resourceOverLimit.With(labels).Set(over)
	}

	c.tenantLevel.With(tenant).Set(float64(q.Level))
}

func (c *Collector) RecordEvaluation(tenantID string, err error, d time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.evaluationsTotal.With(prometheus.Labels{"tenant_id": tenantID, "result": result}).Inc()
	c.evaluationDuration.Observe(d.Seconds())
}

func (c *Collector) RecordAlertOpened(tenantID, severity string) {
	labels := prometheus.Labels{"tenant_id": tenantID, "severity": severity}
	c.alertsTotal.With(labels).Inc()
	c.alertsActive.With(labels).Inc()
}

func (c *Collector) RecordAlertEscalated(tenantID, from, to string) {
	c.alertsActive.With(prometheus.Labels{"tenant_id": tenantID, "severity": from}).Dec()
	c.alertsActive.With(prometheus.Labels{"tenant_id": tenantID, "severity": to}).Inc()
	c.alertEscalations.With(prometheus.Labels{"tenant_id": tenantID, "from": from, "to": to}).Inc()
}

func (c *Collector) RecordAlertResolved(tenantID, severity string, open time.Duration) {
	c.alertsActive.With(prometheus.Labels{"tenant_id": tenantID, "severity": severity}).Dec()
	c.alertOpenDuration.With(prometheus.Labels{"tenant_id": tenantID}).Observe(open.Minutes())
}

// RecordDashboard exports the KPIs of a consolidation pass.
func (c *Collector) RecordDashboard(d *kpi.DashboardData) {
	c.kpiValue.Reset()
	c.kpiClassification.Reset()

	for _, sec := range d.Sections {
		for _, k := range sec.KPIs {
			labels := prometheus.Labels{"kpi_id": k.ID, "category": string(k.Category)}
			if v, ok := k.Value.Numeric(); ok {
				c.kpiValue.With(labels).Set(v)
			}
			c.kpiClassification.With(labels).Set(classificationValue(k.Classification))
		}
	}

	switch d.SystemStatus.Overall {
	case kpi.StatusCritical:
		c.dashboardStatus.Set(2)
	case kpi.StatusWarning:
		c.dashboardStatus.Set(1)
	default:
		c.dashboardStatus.Set(0)
	}

	for _, n := range d.Notices {
		c.dashboardNotices.With(prometheus.Labels{"kind": string(n.Kind)}).Inc()
	}
}

func classificationValue(c kpi.Classification) float64 {
	switch c {
	case kpi.Healthy:
		return 0
	case kpi.Warning:
		return 1
	case kpi.Critical:
		return 2
	}
	return -1
}

func (c *Collector) RecordJob(status string, d time.Duration) {
	c.jobsTotal.With(prometheus.Labels{"status": status}).Inc()
	c.jobDuration.Observe(d.Seconds())
}

func (c *Collector) RecordQueueSize(n int64) {
	c.queueSize.Set(float64(n))
}

func (c *Collector) RecordProbe(name, probeType string, up bool, d time.Duration) {
	labels := prometheus.Labels{"probe": name, "type": probeType}
	v := 0.0
	if up {
		v = 1.0
	}
	c.probeUp.With(labels).Set(v)
	c.probeDuration.With(labels).Observe(d.Seconds())
}
