package kpi

import (
	"encoding/json"
	"fmt"
	"time"
)

type Category string

const (
	CategoryPerformance Category = "performance"
	CategorySystem      Category = "system"
	CategoryActivity    Category = "activity"
	CategoryHealth      Category = "health"
)

// categoryOrder is the stable tie-break order for sections.
var categoryOrder = []Category{CategoryPerformance, CategorySystem, CategoryActivity, CategoryHealth}

var categoryTitles = map[Category]string{
	CategoryPerformance: "Performance",
	CategorySystem:      "System",
	CategoryActivity:    "Activity",
	CategoryHealth:      "Health",
}

func (c Category) valid() bool {
	_, ok := categoryTitles[c]
	return ok
}

func categoryRank(c Category) int {
	for i, cat := range categoryOrder {
		if cat == c {
			return i
		}
	}
	return len(categoryOrder)
}

// Priority orders KPIs and sections. Higher values sort first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "high":
		*p = PriorityHigh
	case "medium":
		*p = PriorityMedium
	case "low":
		*p = PriorityLow
	default:
		return fmt.Errorf("unknown priority %q", s)
	}
	return nil
}

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

func (t Trend) moving() bool {
	return t == TrendUp || t == TrendDown
}

func normalizeTrend(t Trend) Trend {
	if t.moving() {
		return t
	}
	return TrendStable
}

type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
	ColorGray   Color = "gray"
)

// Classification is the threshold verdict for a KPI.
type Classification string

const (
	Unclassified Classification = "unclassified"
	Healthy      Classification = "healthy"
	Warning      Classification = "warning"
	Critical     Classification = "critical"
)

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// KPI is a normalized, classified metric. Color, Priority and Classification are only
// ever set by classify.
type KPI struct {
	ID             string         `json:"id"`
	Label          string         `json:"label"`
	Value          Value          `json:"value"`
	Trend          Trend          `json:"trend"`
	Color          Color          `json:"color"`
	Category       Category       `json:"category"`
	Priority       Priority       `json:"priority"`
	Classification Classification `json:"classification"`
	Source         string         `json:"source"`
}

// Input is what a source adapter emits before classification.
type Input struct {
	ID       string
	Label    string
	Value    Value
	Trend    Trend
	Category Category
	// Err marks an input the adapter could not decode; it is reported, never classified.
	Err error
}

type Section struct {
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Priority Priority `json:"priority"`
	KPIs     []KPI    `json:"kpis"`
}

type SystemStatus struct {
	Overall         Status   `json:"overall"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

type Summary struct {
	TotalKPIs    int          `json:"totalKPIs"`
	HealthyKPIs  int          `json:"healthyKPIs"`
	WarningKPIs  int          `json:"warningKPIs"`
	CriticalKPIs int          `json:"criticalKPIs"`
	LastUpdated  time.Time    `json:"lastUpdated"`
	SystemStatus SystemStatus `json:"systemStatus"`
}

type NoticeKind string

const (
	NoticeMissingSource NoticeKind = "missing_source"
	NoticeIgnoredSource NoticeKind = "ignored_source"
	NoticeConfigMissing NoticeKind = "config_missing"
	NoticeDuplicateKPI  NoticeKind = "duplicate_kpi"
)

// Notice reports a degraded part of a consolidation pass. Callers log notices and may
// surface them as a non-blocking banner.
type Notice struct {
	Kind   NoticeKind `json:"kind"`
	Source string     `json:"source,omitempty"`
	Metric string     `json:"metric,omitempty"`
	Detail string     `json:"detail,omitempty"`
}

// DashboardData is the full result of a consolidation pass.
type DashboardData struct {
	Sections     []Section    `json:"sections"`
	Summary      Summary      `json:"summary"`
	SystemStatus SystemStatus `json:"systemStatus"`
	Compact      []KPI        `json:"compact,omitempty"`
	Notices      []Notice     `json:"notices,omitempty"`
}
