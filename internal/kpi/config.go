package kpi

import "fmt"

// Polarity tells whether higher or lower raw values are healthier.
type Polarity string

const (
	HigherIsBetter Polarity = "higher_is_better"
	LowerIsBetter  Polarity = "lower_is_better"
)

type Threshold struct {
	Warning  float64  `mapstructure:"warning" json:"warning" yaml:"warning"`
	Critical float64  `mapstructure:"critical" json:"critical" yaml:"critical"`
	Polarity Polarity `mapstructure:"polarity" json:"polarity,omitempty" yaml:"polarity,omitempty"`
}

type PriorityWeights struct {
	Performance float64 `mapstructure:"performance" json:"performance" yaml:"performance"`
	System      float64 `mapstructure:"system" json:"system" yaml:"system"`
	Activity    float64 `mapstructure:"activity" json:"activity" yaml:"activity"`
	Health      float64 `mapstructure:"health" json:"health" yaml:"health"`
}

func (w PriorityWeights) weight(c Category) float64 {
	switch c {
	case CategoryPerformance:
		return w.Performance
	case CategorySystem:
		return w.System
	case CategoryActivity:
		return w.Activity
	case CategoryHealth:
		return w.Health
	}
	return 0
}

// DisplayLimits caps the dashboard. Zero or negative section limits mean unlimited;
// CompactModeKPIs <= 0 disables the compact list.
type DisplayLimits struct {
	MaxKPIsPerSection int `mapstructure:"max_kpis_per_section" json:"maxKPIsPerSection" yaml:"max_kpis_per_section"`
	MaxSections       int `mapstructure:"max_sections" json:"maxSections" yaml:"max_sections"`
	CompactModeKPIs   int `mapstructure:"compact_mode_kpis" json:"compactModeKPIs" yaml:"compact_mode_kpis"`
}

// Config is the KPI consolidation configuration. It is read-only during a pass.
type Config struct {
	PriorityWeights PriorityWeights      `mapstructure:"priority_weights" json:"priorityWeights" yaml:"priority_weights"`
	Thresholds      map[string]Threshold `mapstructure:"thresholds" json:"thresholds" yaml:"thresholds"`
	DisplayLimits   DisplayLimits        `mapstructure:"display_limits" json:"displayLimits" yaml:"display_limits"`
	// Recommendations maps a metric id to the remediation shown when that metric is an issue.
	Recommendations map[string]string `mapstructure:"recommendations" json:"recommendations" yaml:"recommendations"`
	RequiredSources []string          `mapstructure:"required_sources" json:"requiredSources" yaml:"required_sources"`
}

// knownPolarity holds the direction of metrics whose meaning is fixed.
var knownPolarity = map[string]Polarity{
	"success_rate": HigherIsBetter,
	"efficiency":   HigherIsBetter,
	"uptime":       HigherIsBetter,
	"health_score": HigherIsBetter,
	"pending_jobs": LowerIsBetter,
	"failed_jobs":  LowerIsBetter,
}

// thresholdedMetrics must carry a threshold; a missing one is reported as a notice.
var thresholdedMetrics = map[string]bool{
	"success_rate": true,
	"efficiency":   true,
	"pending_jobs": true,
}

// threshold resolves the effective threshold for a metric. The error describes why the
// metric cannot be classified; a nil threshold with a nil error means none is configured.
func (c Config) threshold(metricID string) (*Threshold, error) {
	t, ok := c.Thresholds[metricID]
	if !ok {
		if thresholdedMetrics[metricID] {
			return nil, fmt.Errorf("no threshold configured for %s", metricID)
		}
		return nil, nil
	}

	if t.Polarity == "" {
		t.Polarity = knownPolarity[metricID]
	}
	if t.Polarity == "" {
		switch {
		case t.Warning > t.Critical:
			t.Polarity = HigherIsBetter
		case t.Warning < t.Critical:
			t.Polarity = LowerIsBetter
		default:
			return nil, fmt.Errorf("cannot infer polarity for %s from equal cutoffs", metricID)
		}
	}

	switch t.Polarity {
	case HigherIsBetter:
		if t.Critical > t.Warning {
			return nil, fmt.Errorf("threshold for %s: critical %.2f above warning %.2f for higher-is-better", metricID, t.Critical, t.Warning)
		}
	case LowerIsBetter:
		if t.Warning > t.Critical {
			return nil, fmt.Errorf("threshold for %s: warning %.2f above critical %.2f for lower-is-better", metricID, t.Warning, t.Critical)
		}
	default:
		return nil, fmt.Errorf("threshold for %s: unknown polarity %q", metricID, t.Polarity)
	}
	return &t, nil
}

// Validate reports the first threshold that would be ignored during consolidation.
func (c Config) Validate() error {
	for _, id := range sortedKeys(c.Thresholds) {
		if _, err := c.threshold(id); err != nil {
			return fmt.Errorf("kpi: %w", err)
		}
	}
	if c.DisplayLimits.MaxKPIsPerSection < 0 || c.DisplayLimits.MaxSections < 0 || c.DisplayLimits.CompactModeKPIs < 0 {
		return fmt.Errorf("kpi: display limits must be >= 0")
	}
	return nil
}
