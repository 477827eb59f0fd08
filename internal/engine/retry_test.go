package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/serieswatch/internal/series"
)

func (env *testEnv) logAt(t *testing.T, at time.Time, id string, action series.Action, status series.Status) {
	t.Helper()
	_, err := env.store.AppendLog(context.Background(), series.LogEntry{
		Timestamp: series.FormatTime(at),
		SeriesID:  id,
		Action:    action,
		Status:    status,
		Message:   "boom",
	})
	require.NoError(t, err)
}

func TestFindRetryCandidates_Quota(t *testing.T) {
	env := newTestEnv(t, testConfig())
	recent := testNow.Add(-time.Hour)

	// TWO: one error, two retries. THREE: one error, three retries.
	env.logAt(t, recent, "TWO", series.ActionUpdate, series.StatusError)
	env.logAt(t, recent, "THREE", series.ActionUpdate, series.StatusError)
	for i := 0; i < 2; i++ {
		env.logAt(t, recent, "TWO", series.ActionRetry, series.StatusError)
	}
	for i := 0; i < 3; i++ {
		env.logAt(t, recent, "THREE", series.ActionRetry, series.StatusError)
	}

	ids, err := env.engine.Retrier().FindRetryCandidates(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"TWO"}, ids)
}

func TestFindRetryCandidates_WindowAndOrder(t *testing.T) {
	env := newTestEnv(t, testConfig())

	env.logAt(t, testNow.Add(-3*day), "OLD", series.ActionUpdate, series.StatusError)
	env.logAt(t, testNow.Add(-2*time.Hour), "SECOND", series.ActionUpdate, series.StatusError)
	env.logAt(t, testNow.Add(-time.Hour), "FIRST", series.ActionUpdate, series.StatusSuccess)
	env.logAt(t, testNow.Add(-time.Hour), series.SystemID, series.ActionUpdate, series.StatusError)
	env.logAt(t, testNow.Add(-time.Hour), "THIRD", series.ActionUpdate, series.StatusError)
	env.logAt(t, testNow.Add(-time.Minute), "SECOND", series.ActionUpdate, series.StatusError)

	ids, err := env.engine.Retrier().FindRetryCandidates(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"SECOND", "THIRD"}, ids)

	ids, err = env.engine.Retrier().FindRetryCandidates(context.Background(), 7, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"OLD", "SECOND", "THIRD"}, ids)
}

func TestRetrier_RunSequential(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		env.logAt(t, testNow.Add(-time.Hour), id, series.ActionUpdate, series.StatusError)
	}
	env.oracle.AddSeries("A", "Daily", 2)
	env.oracle.AddSeries("B", "Daily", 2)

	before := env.count(t, "SELECT COUNT(*) FROM update_log")
	res, err := env.engine.Retrier().Run(ctx, 1, 3)
	require.NoError(t, err)

	assert.True(t, res.Sequential)
	assert.Equal(t, []string{"A", "B", "C"}, res.Candidates)
	assert.Equal(t, Summary{Updated: 2, Failed: 1}, res.Summary)
	assert.Equal(t, 1, env.oracle.SessionsCreated())

	// One RETRY row per attempt, appended after the existing rows.
	assert.Equal(t, before+3, env.count(t, "SELECT COUNT(*) FROM update_log"))
	assert.Equal(t, 3, env.count(t, "SELECT COUNT(*) FROM update_log WHERE action = 'RETRY'"))
}

func TestRetrier_RunParallel(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for i := 1; i <= 7; i++ {
		id := fmt.Sprintf("S%d", i)
		env.logAt(t, testNow.Add(-time.Hour), id, series.ActionUpdate, series.StatusError)
		env.oracle.AddSeries(id, "Weekly", 1)
	}

	res, err := env.engine.Retrier().Run(context.Background(), 1, 3)
	require.NoError(t, err)

	assert.False(t, res.Sequential)
	assert.Equal(t, Summary{Updated: 7}, res.Summary)
	assert.Equal(t, 2, env.oracle.SessionsCreated())
	assert.False(t, env.oracle.ConcurrentUse())
}

func TestRetrier_QuotaReachedAfterRepeatedRuns(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.logAt(t, testNow.Add(-time.Hour), "DEAD", series.ActionUpdate, series.StatusError)

	for run := 0; run < 3; run++ {
		res, err := env.engine.Retrier().Run(context.Background(), 1, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"DEAD"}, res.Candidates, "run %d", run)
	}

	sum, err := env.engine.Retrier().RetryFailed(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
	assert.Equal(t, 3, env.oracle.FetchCalls("DEAD"))
}
