package quota

import (
	"fmt"
	"sort"
	"time"
)

// Evaluator derives alert levels from usage counters. The zero value is ready to use.
type Evaluator struct {
	Now func() time.Time
}

var defaultEvaluator = Evaluator{}

// Evaluate evaluates one tenant with the default clock.
func Evaluate(contract ContractInfo, counters map[string]UsageCounter) (*TenantQuota, error) {
	return defaultEvaluator.Evaluate(contract, counters)
}

// EvaluateBatch evaluates every tenant independently with the default clock.
func EvaluateBatch(inputs []TenantInput) []BatchResult {
	return defaultEvaluator.EvaluateBatch(inputs)
}

func (e Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate computes per-resource ratios and the tenant alert level. Counters with a
// negative current or limit, or whose resource name disagrees with their key, fail the
// whole tenant with ErrInvalidInput.
func (e Evaluator) Evaluate(contract ContractInfo, counters map[string]UsageCounter) (*TenantQuota, error) {
	resources := make(map[string]ResourceUsage, len(counters))
	level := LevelNone

	// Deterministic order keeps the reported error stable when several counters are invalid.
	for _, key := range sortedKeys(counters) {
		counter := counters[key]
		name := key
		if counter.Resource != "" && counter.Resource != key {
			return nil, fmt.Errorf("%w: counter %q reports resource %q", ErrInvalidInput, key, counter.Resource)
		}

		if counter.Current < 0 {
			return nil, fmt.Errorf("%w: resource %q has negative current %d", ErrInvalidInput, name, counter.Current)
		}
		if counter.Limit != nil && *counter.Limit < 0 {
			return nil, fmt.Errorf("%w: resource %q has negative limit %d", ErrInvalidInput, name, *counter.Limit)
		}

		usage := evaluateCounter(contract, name, counter)
		resources[name] = usage
		level = MaxLevel(level, usage.Level)
	}

	return &TenantQuota{
		Contract:    contract,
		Resources:   resources,
		Level:       level,
		EvaluatedAt: e.now(),
	}, nil
}

func evaluateCounter(contract ContractInfo, name string, counter UsageCounter) ResourceUsage {
	usage := ResourceUsage{
		Resource: name,
		Current:  counter.Current,
	}

	// Without a contract every limit is unknown, never zero.
	if !contract.HasContract || counter.Limit == nil {
		return usage
	}

	limit := *counter.Limit
	usage.Limit = &limit
	usage.OverLimit = counter.Current > limit

	if limit == 0 {
		if counter.Current > 0 {
			usage.Level = LevelCritical
		}
		return usage
	}

	ratio := float64(counter.Current) / float64(limit)
	usage.Ratio = &ratio
	usage.Level = levelForRatio(ratio)
	return usage
}

func levelForRatio(ratio float64) AlertLevel {
	switch {
	case ratio >= 1.0:
		return LevelCritical
	case ratio >= WarningRatio:
		return LevelWarning
	default:
		return LevelNone
	}
}

// EvaluateBatch evaluates each tenant on its own; a failing tenant never affects the others.
// Results keep the input order.
func (e Evaluator) EvaluateBatch(inputs []TenantInput) []BatchResult {
	results := make([]BatchResult, 0, len(inputs))
	for _, in := range inputs {
		res := BatchResult{TenantID: in.TenantID}
		q, err := e.Evaluate(in.Contract, in.Counters)
		if err != nil {
			res.Err = err
			res.Error = err.Error()
		} else {
			q.TenantID = in.TenantID
			res.Quota = q
		}
		results = append(results, res)
	}
	return results
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
