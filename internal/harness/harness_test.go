package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
			assert.Len(t, result.Steps, len(scenario.Steps))
		})
	}
}

func TestRefreshAndRetry_Golden(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/refresh_and_retry.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))

	require.NoError(t, AssertGolden(t, scenario.Name, result))
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/refresh_and_retry.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Steps, second.Steps)
}

func TestRun_ExpectMismatchIsReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expect
description: "expects an update that cannot happen"
steps:
  - op: fetch
    series: MISSING
    expect: { updated: 1 }
assertions:
  - type: trace_count
    series: MISSING
    status: ERROR
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "updated = 0, want 1")
}

func TestRun_FailedAssertionIsReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_state
description: "asserts a row for a series that was never fetched"
steps:
  - op: pass
assertions:
  - type: final_state
    series: NOPE
    expect: { observations: "1" }
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "metadata row for NOPE")
}
