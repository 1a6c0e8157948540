package kpi

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var categories = []Category{CategoryPerformance, CategorySystem, CategoryActivity, CategoryHealth}

// genMetrics builds a list of count metrics with unique ids spread across categories.
func genMetrics() gopter.Gen {
	return gen.SliceOf(gen.Int64Range(0, 300)).Map(func(values []int64) []MetricInput {
		out := make([]MetricInput, len(values))
		for i, v := range values {
			out[i] = MetricInput{
				ID:       fmt.Sprintf("m%d", i),
				Kind:     KindCount,
				Value:    json.RawMessage(fmt.Sprintf("%d", v)),
				Category: categories[int(v)%len(categories)],
			}
		}
		return out
	})
}

func propertyConfig(perSection, sections int) Config {
	cfg := Config{
		PriorityWeights: PriorityWeights{Performance: 2, System: 1, Activity: 1, Health: 3},
		Thresholds:      map[string]Threshold{},
		DisplayLimits:   DisplayLimits{MaxKPIsPerSection: perSection, MaxSections: sections},
	}
	for i := 0; i < 300; i++ {
		cfg.Thresholds[fmt.Sprintf("m%d", i)] = Threshold{Warning: 100, Critical: 200, Polarity: LowerIsBetter}
	}
	return cfg
}

// TestConsolidateInvariants checks the summary and sectioning rules over random inputs.
// Property: totals add up, sections respect the caps, priorities never increase down the page
func TestConsolidateInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	properties.Property("summary counts sum to the total", prop.ForAll(
		func(metrics []MetricInput, perSection, sections int) bool {
			d := Consolidate(map[string]Source{"metrics": MetricsSource{Metrics: metrics}}, propertyConfig(perSection, sections))
			s := d.Summary
			return s.TotalKPIs == s.HealthyKPIs+s.WarningKPIs+s.CriticalKPIs
		},
		genMetrics(),
		gen.IntRange(0, 6),
		gen.IntRange(0, 5),
	))

	properties.Property("display limits are respected", prop.ForAll(
		func(metrics []MetricInput, perSection, sections int) bool {
			d := Consolidate(map[string]Source{"metrics": MetricsSource{Metrics: metrics}}, propertyConfig(perSection, sections))
			if sections > 0 && len(d.Sections) > sections {
				return false
			}
			for _, sec := range d.Sections {
				if perSection > 0 && len(sec.KPIs) > perSection {
					return false
				}
				if len(sec.KPIs) == 0 {
					return false
				}
			}
			return true
		},
		genMetrics(),
		gen.IntRange(0, 6),
		gen.IntRange(0, 5),
	))

	properties.Property("section and KPI priorities are non-increasing", prop.ForAll(
		func(metrics []MetricInput) bool {
			d := Consolidate(map[string]Source{"metrics": MetricsSource{Metrics: metrics}}, propertyConfig(0, 0))
			for i, sec := range d.Sections {
				if i > 0 && d.Sections[i-1].Priority < sec.Priority {
					return false
				}
				for j, k := range sec.KPIs {
					if k.Priority > sec.Priority {
						return false
					}
					if j > 0 && sec.KPIs[j-1].Priority < k.Priority {
						return false
					}
				}
			}
			return true
		},
		genMetrics(),
	))

	properties.Property("overall status reflects the worst KPI", prop.ForAll(
		func(metrics []MetricInput) bool {
			d := Consolidate(map[string]Source{"metrics": MetricsSource{Metrics: metrics}}, propertyConfig(0, 0))
			switch {
			case d.Summary.CriticalKPIs > 0:
				return d.SystemStatus.Overall == StatusCritical
			case d.Summary.WarningKPIs > 0:
				return d.SystemStatus.Overall == StatusWarning
			default:
				return d.SystemStatus.Overall == StatusHealthy
			}
		},
		genMetrics(),
	))

	properties.Property("identical inputs give identical output", prop.ForAll(
		func(metrics []MetricInput, perSection int) bool {
			c := Consolidator{Now: func() time.Time { return time.Unix(1700000000, 0).UTC() }}
			cfg := propertyConfig(perSection, 0)
			a, _ := json.Marshal(c.Consolidate(map[string]Source{"metrics": MetricsSource{Metrics: metrics}}, cfg))
			b, _ := json.Marshal(c.Consolidate(map[string]Source{"metrics": MetricsSource{Metrics: metrics}}, cfg))
			return string(a) == string(b)
		},
		genMetrics(),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}
