package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozw/quota-guardian/internal/kpi"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

const usage = `{"tenants": [
	{"tenant_id": "acme", "contract": {"has_contract": true},
	 "counters": {"seats": {"resource_name": "seats", "current": 10, "limit": 10}}},
	{"tenant_id": "broken", "contract": {"has_contract": true},
	 "counters": {"seats": {"resource_name": "seats", "current": -5}}}
]}`

func TestEvaluateCmd(t *testing.T) {
	out, _, err := run(t, usage, "evaluate", "-f", "-")
	require.NoError(t, err)

	var results []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "critical", results[0]["quota"].(map[string]interface{})["level"])
	assert.Contains(t, results[1]["error"], "invalid input")

	_, _, err = run(t, usage, "evaluate", "-f", "-", "--fail-on-error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 tenants failed")
}

func TestEvaluateCmd_BareArrayFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"tenant_id": "solo", "contract": {"has_contract": false},
		"counters": {"seats": {"resource_name": "seats", "current": 99, "limit": 1}}}]`), 0o600))

	out, _, err := run(t, "", "evaluate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"level": "none"`)
}

func TestEvaluateCmd_RequiresFile(t *testing.T) {
	_, _, err := run(t, "", "evaluate")
	require.Error(t, err)
}

func TestConsolidateCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
kpi:
  thresholds:
    success_rate:
      warning: 95
      critical: 80
  display_limits:
    compact_mode_kpis: 2
`), 0o600))

	sources := `{"stats": {"total_jobs": 10, "successful_jobs": 7, "failed_jobs": 3}, "radar": {}}`
	out, stderr, err := run(t, sources, "consolidate", "-f", "-", "--config", cfgPath)
	require.NoError(t, err)

	var d kpi.DashboardData
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, kpi.StatusCritical, d.SystemStatus.Overall)
	assert.Contains(t, stderr, "ignored_source radar")

	out, _, err = run(t, sources, "consolidate", "-f", "-", "--config", cfgPath, "--compact")
	require.NoError(t, err)
	var compact []kpi.KPI
	require.NoError(t, json.Unmarshal([]byte(out), &compact))
	assert.Len(t, compact, 2)
}
