package quota

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WarningRatio is the utilization at which a metered resource starts warning.
const WarningRatio = 0.8

// ErrInvalidInput is returned when a counter carries a negative value.
var ErrInvalidInput = errors.New("invalid input")

type AlertLevel int

const (
	LevelNone AlertLevel = iota
	LevelWarning
	LevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "none"
	}
}

func (l AlertLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *AlertLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAlertLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseAlertLevel converts the textual level stored in the database or cache.
func ParseAlertLevel(s string) (AlertLevel, error) {
	switch s {
	case "", "none":
		return LevelNone, nil
	case "warning":
		return LevelWarning, nil
	case "critical":
		return LevelCritical, nil
	}
	return LevelNone, fmt.Errorf("unknown alert level %q", s)
}

// MaxLevel returns the more severe of two levels.
func MaxLevel(a, b AlertLevel) AlertLevel {
	if a > b {
		return a
	}
	return b
}

// UsageCounter is one metered resource of a tenant. A nil Limit means unlimited.
type UsageCounter struct {
	Resource string `json:"resource_name"`
	Current  int64  `json:"current"`
	Limit    *int64 `json:"limit,omitempty"`
}

type ContractInfo struct {
	HasContract bool   `json:"has_contract"`
	PlanID      string `json:"plan_id,omitempty"`
}

// ResourceUsage is the evaluated state of a single counter.
type ResourceUsage struct {
	Resource  string     `json:"resource_name"`
	Current   int64      `json:"current"`
	Limit     *int64     `json:"limit,omitempty"`
	Ratio     *float64   `json:"ratio,omitempty"`
	OverLimit bool       `json:"over_limit"`
	Level     AlertLevel `json:"level"`
}

// TenantQuota is an immutable snapshot produced by one evaluation.
type TenantQuota struct {
	TenantID    string                   `json:"tenant_id"`
	Contract    ContractInfo             `json:"contract"`
	Resources   map[string]ResourceUsage `json:"resources"`
	Level       AlertLevel               `json:"level"`
	EvaluatedAt time.Time                `json:"evaluated_at"`
}

// OverLimitResources lists the resources currently above their limit, sorted by name.
func (t *TenantQuota) OverLimitResources() []string {
	var names []string
	for _, name := range sortedKeys(t.Resources) {
		if t.Resources[name].OverLimit {
			names = append(names, name)
		}
	}
	return names
}

// PeakRatio returns the highest defined ratio across resources, or false when none is defined.
func (t *TenantQuota) PeakRatio() (float64, bool) {
	peak, found := 0.0, false
	for _, r := range t.Resources {
		if r.Ratio == nil {
			continue
		}
		if !found || *r.Ratio > peak {
			peak = *r.Ratio
			found = true
		}
	}
	return peak, found
}

// TenantInput is one item of a batch evaluation.
type TenantInput struct {
	TenantID string                  `json:"tenant_id"`
	Contract ContractInfo            `json:"contract"`
	Counters map[string]UsageCounter `json:"counters"`
}

// BatchResult holds either the quota or the error for one tenant.
type BatchResult struct {
	TenantID string       `json:"tenant_id"`
	Quota    *TenantQuota `json:"quota,omitempty"`
	Err      error        `json:"-"`
	Error    string       `json:"error,omitempty"`
}
