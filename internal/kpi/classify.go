package kpi

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// classifyValue applies a resolved threshold to a numeric value.
func classifyValue(v float64, t Threshold) Classification {
	if t.Polarity == HigherIsBetter {
		switch {
		case v >= t.Warning:
			return Healthy
		case v >= t.Critical:
			return Warning
		default:
			return Critical
		}
	}
	switch {
	case v <= t.Warning:
		return Healthy
	case v <= t.Critical:
		return Warning
	default:
		return Critical
	}
}

func colorFor(c Classification) Color {
	switch c {
	case Healthy:
		return ColorGreen
	case Warning:
		return ColorYellow
	case Critical:
		return ColorRed
	}
	return ColorGray
}

// priorityFor derives the priority from the category and the classification.
func priorityFor(cat Category, c Classification) Priority {
	primary := cat == CategoryPerformance || cat == CategoryHealth
	switch c {
	case Critical:
		return PriorityHigh
	case Warning:
		if primary {
			return PriorityHigh
		}
		return PriorityMedium
	}
	if primary {
		return PriorityMedium
	}
	return PriorityLow
}

// classify turns an adapter input into a KPI. The returned error explains a threshold that
// could not be applied; the KPI is still usable as unclassified.
func classify(in Input, source string, cfg Config) (KPI, error) {
	k := KPI{
		ID:             in.ID,
		Label:          in.Label,
		Value:          in.Value,
		Trend:          normalizeTrend(in.Trend),
		Category:       in.Category,
		Classification: Unclassified,
		Source:         source,
	}
	if k.Label == "" {
		k.Label = humanize(in.ID)
	}

	t, err := cfg.threshold(in.ID)
	if t != nil {
		if v, ok := in.Value.Numeric(); ok {
			k.Classification = classifyValue(v, *t)
		}
	}

	k.Color = colorFor(k.Classification)
	k.Priority = priorityFor(k.Category, k.Classification)
	return k, err
}

func humanize(id string) string {
	s := strings.ReplaceAll(id, "_", " ")
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
