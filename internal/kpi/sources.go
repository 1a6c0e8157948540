package kpi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/leozw/quota-guardian/internal/quota"
)

type SourceKind string

const (
	SourceStats     SourceKind = "stats"
	SourceHealth    SourceKind = "health"
	SourceMetrics   SourceKind = "metrics"
	SourceDashboard SourceKind = "dashboard"
	SourceKPIs      SourceKind = "kpis"
	SourceQuotas    SourceKind = "quotas"
	SourceIgnored   SourceKind = "ignored"
)

// sourceOrder fixes the order in which sources contribute KPIs.
var sourceOrder = map[SourceKind]int{
	SourceStats:     0,
	SourceHealth:    1,
	SourceMetrics:   2,
	SourceDashboard: 3,
	SourceKPIs:      4,
	SourceQuotas:    5,
	SourceIgnored:   6,
}

// Source is one raw metric bundle. The set of implementations is closed.
type Source interface {
	Kind() SourceKind
	inputs() []Input
}

// JobStats are the counters of the refresh job queue over one window.
type JobStats struct {
	TotalJobs      int64   `json:"total_jobs"`
	SuccessfulJobs int64   `json:"successful_jobs"`
	FailedJobs     int64   `json:"failed_jobs"`
	PendingJobs    int64   `json:"pending_jobs"`
	RunningJobs    int64   `json:"running_jobs"`
	AvgDurationMs  float64 `json:"avg_duration_ms"`
}

func (s JobStats) successRate() (float64, bool) {
	finished := s.SuccessfulJobs + s.FailedJobs
	if finished <= 0 {
		return 0, false
	}
	return float64(s.SuccessfulJobs) / float64(finished) * 100, true
}

func (s JobStats) efficiency() (float64, bool) {
	if s.TotalJobs <= 0 {
		return 0, false
	}
	return float64(s.SuccessfulJobs+s.FailedJobs) / float64(s.TotalJobs) * 100, true
}

type StatsSource struct {
	JobStats
	Previous *JobStats `json:"previous,omitempty"`
}

func (StatsSource) Kind() SourceKind { return SourceStats }

func (s StatsSource) inputs() []Input {
	var out []Input

	if rate, ok := s.successRate(); ok {
		trend := TrendStable
		if s.Previous != nil {
			if prev, ok := s.Previous.successRate(); ok {
				trend = trendOf(rate, prev)
			}
		}
		out = append(out, Input{ID: "success_rate", Label: "Success rate", Value: Percentage(rate), Trend: trend, Category: CategoryPerformance})
	}

	if eff, ok := s.efficiency(); ok {
		trend := TrendStable
		if s.Previous != nil {
			if prev, ok := s.Previous.efficiency(); ok {
				trend = trendOf(eff, prev)
			}
		}
		out = append(out, Input{ID: "efficiency", Label: "Efficiency", Value: Percentage(eff), Trend: trend, Category: CategoryPerformance})
	}

	out = append(out, Input{
		ID: "pending_jobs", Label: "Pending jobs", Value: Count(s.PendingJobs),
		Trend: s.countTrend(s.PendingJobs, func(p JobStats) int64 { return p.PendingJobs }), Category: CategorySystem,
	})
	out = append(out, Input{
		ID: "failed_jobs", Label: "Failed jobs", Value: Count(s.FailedJobs),
		Trend: s.countTrend(s.FailedJobs, func(p JobStats) int64 { return p.FailedJobs }), Category: CategoryActivity,
	})

	if s.SuccessfulJobs+s.FailedJobs > 0 {
		trend := TrendStable
		if s.Previous != nil && s.Previous.SuccessfulJobs+s.Previous.FailedJobs > 0 {
			trend = trendOf(s.AvgDurationMs, s.Previous.AvgDurationMs)
		}
		out = append(out, Input{ID: "avg_duration", Label: "Average duration", Value: DurationMillis(s.AvgDurationMs), Trend: trend, Category: CategoryPerformance})
	}
	return out
}

func (s StatsSource) countTrend(cur int64, pick func(JobStats) int64) Trend {
	if s.Previous == nil {
		return TrendStable
	}
	return trendOf(float64(cur), float64(pick(*s.Previous)))
}

type ProbeResult struct {
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

// HealthSource is the outcome of one round of dependency probes.
type HealthSource struct {
	Score            *float64      `json:"score,omitempty"`
	UptimePercentage *float64      `json:"uptime_percentage,omitempty"`
	PreviousUptime   *float64      `json:"previous_uptime_percentage,omitempty"`
	Probes           []ProbeResult `json:"probes"`
}

func (HealthSource) Kind() SourceKind { return SourceHealth }

func (h HealthSource) inputs() []Input {
	var out []Input

	uptime := h.UptimePercentage
	if uptime == nil && len(h.Probes) > 0 {
		up := 0
		for _, p := range h.Probes {
			if p.Status == "up" {
				up++
			}
		}
		v := float64(up) / float64(len(h.Probes)) * 100
		uptime = &v
	}
	if uptime != nil {
		trend := TrendStable
		if h.PreviousUptime != nil {
			trend = trendOf(*uptime, *h.PreviousUptime)
		}
		out = append(out, Input{ID: "uptime", Label: "Uptime", Value: Percentage(*uptime), Trend: trend, Category: CategoryHealth})
	}

	if h.Score != nil {
		out = append(out, Input{ID: "health_score", Label: "Health score", Value: Percentage(*h.Score), Category: CategoryHealth})
	}

	if len(h.Probes) > 0 {
		failed := int64(0)
		for _, p := range h.Probes {
			if p.Status != "up" {
				failed++
			}
		}
		out = append(out, Input{ID: "failed_probes", Label: "Failed probes", Value: Count(failed), Category: CategoryHealth})
	}

	for _, p := range h.Probes {
		out = append(out, Input{
			ID:       "probe_" + p.Name,
			Label:    humanize(p.Name) + " latency",
			Value:    DurationMillis(p.ResponseTimeMs),
			Category: CategorySystem,
		})
	}
	return out
}

// MetricInput is a free-form typed metric as supplied by the metrics and kpis sources.
type MetricInput struct {
	ID       string          `json:"id"`
	Label    string          `json:"label"`
	Kind     ValueKind       `json:"kind"`
	Value    json.RawMessage `json:"value"`
	Category Category        `json:"category"`
	Trend    Trend           `json:"trend"`
}

func metricInputs(items []MetricInput, fallback Category) []Input {
	out := make([]Input, 0, len(items))
	for _, m := range items {
		if m.ID == "" {
			continue
		}
		v, err := parseValue(m.Kind, m.Value)
		if err != nil {
			out = append(out, Input{ID: m.ID, Err: err})
			continue
		}
		cat := m.Category
		if !cat.valid() {
			cat = fallback
		}
		out = append(out, Input{ID: m.ID, Label: m.Label, Value: v, Trend: m.Trend, Category: cat})
	}
	return out
}

type MetricsSource struct {
	Metrics []MetricInput `json:"metrics"`
}

func (MetricsSource) Kind() SourceKind { return SourceMetrics }

func (m MetricsSource) inputs() []Input { return metricInputs(m.Metrics, CategorySystem) }

type KPIsSource struct {
	KPIs []MetricInput `json:"kpis"`
}

func (KPIsSource) Kind() SourceKind { return SourceKPIs }

func (k KPIsSource) inputs() []Input { return metricInputs(k.KPIs, CategoryPerformance) }

// DashboardSource carries named activity counters from a generic dashboard.
type DashboardSource struct {
	Title    string           `json:"title,omitempty"`
	Counters map[string]int64 `json:"counters"`
	Previous map[string]int64 `json:"previous,omitempty"`
}

func (DashboardSource) Kind() SourceKind { return SourceDashboard }

func (d DashboardSource) inputs() []Input {
	out := make([]Input, 0, len(d.Counters))
	for _, name := range sortedKeys(d.Counters) {
		trend := TrendStable
		if prev, ok := d.Previous[name]; ok {
			trend = trendOf(float64(d.Counters[name]), float64(prev))
		}
		out = append(out, Input{ID: name, Value: Count(d.Counters[name]), Trend: trend, Category: CategoryActivity})
	}
	return out
}

// QuotaSource summarizes a fleet of evaluated tenant quotas.
type QuotaSource struct {
	Tenants []quota.TenantQuota `json:"tenants"`
}

func (QuotaSource) Kind() SourceKind { return SourceQuotas }

func (q QuotaSource) inputs() []Input {
	var critical, warning, overLimit int64
	peak, hasPeak := 0.0, false
	for i := range q.Tenants {
		t := &q.Tenants[i]
		switch t.Level {
		case quota.LevelCritical:
			critical++
		case quota.LevelWarning:
			warning++
		}
		overLimit += int64(len(t.OverLimitResources()))
		if r, ok := t.PeakRatio(); ok && (!hasPeak || r > peak) {
			peak, hasPeak = r, true
		}
	}

	out := []Input{
		{ID: "quota_critical_tenants", Label: "Tenants at quota limit", Value: Count(critical), Category: CategorySystem},
		{ID: "quota_warning_tenants", Label: "Tenants near quota limit", Value: Count(warning), Category: CategorySystem},
		{ID: "quota_over_limit_resources", Label: "Resources over limit", Value: Count(overLimit), Category: CategorySystem},
	}
	if hasPeak {
		out = append(out, Input{ID: "quota_peak_utilization", Label: "Peak quota utilization", Value: Percentage(peak * 100), Category: CategorySystem})
	}
	return out
}

// IgnoredSource stands for a bundle that is not understood. It contributes no KPIs.
type IgnoredSource struct {
	Name   string
	Reason string
}

func (IgnoredSource) Kind() SourceKind { return SourceIgnored }

func (IgnoredSource) inputs() []Input { return nil }

// ParseSources decodes the named raw bundles. Unknown names and malformed bundles become
// IgnoredSource values rather than errors.
func ParseSources(raw map[string]json.RawMessage) map[string]Source {
	out := make(map[string]Source, len(raw))
	for name, data := range raw {
		src, err := decodeSource(SourceKind(name), data)
		if err != nil {
			out[name] = IgnoredSource{Name: name, Reason: err.Error()}
			continue
		}
		out[name] = src
	}
	return out
}

func decodeSource(kind SourceKind, data json.RawMessage) (Source, error) {
	switch kind {
	case SourceStats:
		var s StatsSource
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil
	case SourceHealth:
		var h HealthSource
		if err := json.Unmarshal(data, &h); err != nil {
			return nil, err
		}
		return h, nil
	case SourceMetrics:
		var m MetricsSource
		if err := unmarshalListOrObject(data, &m.Metrics, &m); err != nil {
			return nil, err
		}
		return m, nil
	case SourceKPIs:
		var k KPIsSource
		if err := unmarshalListOrObject(data, &k.KPIs, &k); err != nil {
			return nil, err
		}
		return k, nil
	case SourceDashboard:
		var d DashboardSource
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case SourceQuotas:
		var q QuotaSource
		if err := unmarshalListOrObject(data, &q.Tenants, &q); err != nil {
			return nil, err
		}
		return q, nil
	}
	return nil, fmt.Errorf("unrecognized source %q", string(kind))
}

// unmarshalListOrObject accepts a bare array as shorthand for the wrapping object.
func unmarshalListOrObject(data []byte, list, object any) error {
	if isArray(data) {
		return json.Unmarshal(data, list)
	}
	return json.Unmarshal(data, object)
}

func isArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// orderedSourceNames sorts source names by kind, then by name.
func orderedSourceNames(sources map[string]Source) []string {
	names := make([]string, 0, len(sources))
	for name, src := range sources {
		if src == nil {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ki, kj := sourceOrder[sources[names[i]].Kind()], sourceOrder[sources[names[j]].Kind()]
		if ki != kj {
			return ki < kj
		}
		return names[i] < names[j]
	})
	return names
}

const trendEpsilon = 1e-9

func trendOf(cur, prev float64) Trend {
	switch {
	case cur > prev+trendEpsilon:
		return TrendUp
	case cur < prev-trendEpsilon:
		return TrendDown
	}
	return TrendStable
}
