package kpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold_Polarity(t *testing.T) {
	cfg := Config{Thresholds: map[string]Threshold{
		"success_rate": {Warning: 90, Critical: 70},
		"pending_jobs": {Warning: 50, Critical: 100},
		"error_rate":   {Warning: 1, Critical: 5},
		"apdex":        {Warning: 0.9, Critical: 0.7},
		"flat":         {Warning: 3, Critical: 3},
		"forced":       {Warning: 3, Critical: 3, Polarity: LowerIsBetter},
	}}

	tests := []struct {
		id   string
		want Polarity
	}{
		{"success_rate", HigherIsBetter},
		{"pending_jobs", LowerIsBetter},
		{"error_rate", LowerIsBetter},
		{"apdex", HigherIsBetter},
		{"forced", LowerIsBetter},
	}
	for _, tt := range tests {
		th, err := cfg.threshold(tt.id)
		require.NoError(t, err, tt.id)
		require.NotNil(t, th, tt.id)
		assert.Equal(t, tt.want, th.Polarity, tt.id)
	}

	th, err := cfg.threshold("flat")
	assert.Nil(t, th)
	assert.Error(t, err)
}

func TestThreshold_Missing(t *testing.T) {
	cfg := Config{}

	th, err := cfg.threshold("cpu_usage")
	assert.Nil(t, th)
	assert.NoError(t, err)

	th, err = cfg.threshold("success_rate")
	assert.Nil(t, th)
	assert.Error(t, err)
}

func TestThreshold_InconsistentWithKnownPolarity(t *testing.T) {
	cfg := Config{Thresholds: map[string]Threshold{"pending_jobs": {Warning: 100, Critical: 50}}}
	th, err := cfg.threshold("pending_jobs")
	assert.Nil(t, th)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	bad := testConfig()
	bad.Thresholds["efficiency"] = Threshold{Warning: 10, Critical: 60}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "efficiency")

	bad = testConfig()
	bad.DisplayLimits.MaxSections = -1
	assert.Error(t, bad.Validate())
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, PriorityHigh, priorityFor(CategorySystem, Critical))
	assert.Equal(t, PriorityHigh, priorityFor(CategoryHealth, Warning))
	assert.Equal(t, PriorityMedium, priorityFor(CategoryActivity, Warning))
	assert.Equal(t, PriorityMedium, priorityFor(CategoryPerformance, Healthy))
	assert.Equal(t, PriorityLow, priorityFor(CategorySystem, Unclassified))
}
