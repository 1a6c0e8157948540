package kpi

import (
	"fmt"
	"sort"
	"time"
)

// Consolidator merges raw sources into a dashboard. The zero value is ready to use.
type Consolidator struct {
	Now func() time.Time
}

// Consolidate runs a pass with the default clock.
func Consolidate(sources map[string]Source, cfg Config) *DashboardData {
	return Consolidator{}.Consolidate(sources, cfg)
}

type rankedKPI struct {
	KPI
	index int
}

// Consolidate normalizes, classifies, sections and summarizes the sources. It never fails:
// anything it cannot use is reported in DashboardData.Notices.
func (c Consolidator) Consolidate(sources map[string]Source, cfg Config) *DashboardData {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	var notices []Notice
	for _, name := range cfg.RequiredSources {
		if src, ok := sources[name]; !ok || src == nil {
			notices = append(notices, Notice{Kind: NoticeMissingSource, Source: name, Detail: "required source not supplied"})
		}
	}

	var all []rankedKPI
	seen := make(map[string]string)
	for _, name := range orderedSourceNames(sources) {
		src := sources[name]
		if ignored, ok := src.(IgnoredSource); ok {
			notices = append(notices, Notice{Kind: NoticeIgnoredSource, Source: name, Detail: ignored.Reason})
			continue
		}

		for _, in := range src.inputs() {
			if in.ID == "" {
				continue
			}
			if in.Err != nil {
				notices = append(notices, Notice{Kind: NoticeIgnoredSource, Source: name, Metric: in.ID, Detail: in.Err.Error()})
				continue
			}
			if first, dup := seen[in.ID]; dup {
				notices = append(notices, Notice{
					Kind:   NoticeDuplicateKPI,
					Source: name,
					Metric: in.ID,
					Detail: fmt.Sprintf("already supplied by %s", first),
				})
				continue
			}
			seen[in.ID] = name

			if !in.Category.valid() {
				in.Category = CategorySystem
			}
			k, err := classify(in, name, cfg)
			if err != nil {
				notices = append(notices, Notice{Kind: NoticeConfigMissing, Source: name, Metric: in.ID, Detail: err.Error()})
			}
			all = append(all, rankedKPI{KPI: k, index: len(all)})
		}
	}

	sections := buildSections(all, cfg)
	summary := summarize(sections, cfg, now)

	return &DashboardData{
		Sections:     sections,
		Summary:      summary,
		SystemStatus: summary.SystemStatus,
		Compact:      compact(sections, cfg.DisplayLimits.CompactModeKPIs),
		Notices:      notices,
	}
}

func buildSections(all []rankedKPI, cfg Config) []Section {
	byCategory := make(map[Category][]rankedKPI)
	for _, k := range all {
		byCategory[k.Category] = append(byCategory[k.Category], k)
	}

	sections := make([]Section, 0, len(byCategory))
	for _, cat := range categoryOrder {
		members := byCategory[cat]
		if len(members) == 0 {
			continue
		}
		kept := truncate(members, cfg.DisplayLimits.MaxKPIsPerSection)
		sortForDisplay(kept)

		section := Section{Category: cat, Title: categoryTitles[cat], Priority: PriorityLow, KPIs: make([]KPI, 0, len(kept))}
		for _, k := range kept {
			if k.Priority > section.Priority {
				section.Priority = k.Priority
			}
			section.KPIs = append(section.KPIs, k.KPI)
		}
		sections = append(sections, section)
	}

	sort.SliceStable(sections, func(i, j int) bool {
		a, b := sections[i], sections[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		wa, wb := cfg.PriorityWeights.weight(a.Category), cfg.PriorityWeights.weight(b.Category)
		if wa != wb {
			return wa > wb
		}
		return categoryRank(a.Category) < categoryRank(b.Category)
	})

	if limit := cfg.DisplayLimits.MaxSections; limit > 0 && len(sections) > limit {
		sections = sections[:limit]
	}
	return sections
}

// truncate keeps the limit best KPIs ranked by priority then original order. The dropped
// ones are the lowest priority, latest first.
func truncate(members []rankedKPI, limit int) []rankedKPI {
	ranked := append([]rankedKPI(nil), members...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority > ranked[j].Priority
		}
		return ranked[i].index < ranked[j].index
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// sortForDisplay orders by priority, then moving trends before stable, then original order.
func sortForDisplay(kpis []rankedKPI) {
	sort.SliceStable(kpis, func(i, j int) bool {
		a, b := kpis[i], kpis[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Trend.moving() != b.Trend.moving() {
			return a.Trend.moving()
		}
		return a.index < b.index
	})
}

func summarize(sections []Section, cfg Config, now time.Time) Summary {
	s := Summary{LastUpdated: now}

	var critical, warning []KPI
	for _, sec := range sections {
		for _, k := range sec.KPIs {
			s.TotalKPIs++
			switch k.Classification {
			case Critical:
				s.CriticalKPIs++
				critical = append(critical, k)
			case Warning:
				s.WarningKPIs++
				warning = append(warning, k)
			default:
				s.HealthyKPIs++
			}
		}
	}

	status := SystemStatus{Overall: StatusHealthy, Issues: []string{}, Recommendations: []string{}}
	switch {
	case s.CriticalKPIs > 0:
		status.Overall = StatusCritical
	case s.WarningKPIs > 0:
		status.Overall = StatusWarning
	}

	seen := make(map[string]bool)
	for _, k := range append(critical, warning...) {
		status.Issues = append(status.Issues, k.Label)
		rec, ok := cfg.Recommendations[k.ID]
		if !ok || rec == "" || seen[rec] {
			continue
		}
		seen[rec] = true
		status.Recommendations = append(status.Recommendations, rec)
	}

	s.SystemStatus = status
	return s
}

func compact(sections []Section, n int) []KPI {
	if n <= 0 {
		return nil
	}
	out := make([]KPI, 0, n)
	for _, sec := range sections {
		for _, k := range sec.KPIs {
			if len(out) == n {
				return out
			}
			out = append(out, k)
		}
	}
	return out
}
