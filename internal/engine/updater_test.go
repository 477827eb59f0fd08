package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/series"
	"github.com/roach88/serieswatch/internal/testutil"
)

func TestSummary(t *testing.T) {
	var s Summary
	s.Add(Outcome{State: StateUpserted})
	s.Add(Outcome{State: StateSkipped})
	s.Add(Outcome{State: StateFailed})
	s.Add(Outcome{State: StateFailed})
	s.Add(Outcome{State: StateInterrupted})
	s.Merge(Summary{Updated: 2, Unprocessed: 3})

	assert.Equal(t, Summary{Updated: 3, Skipped: 1, Failed: 2, Unprocessed: 4}, s)
	assert.Equal(t, 10, s.Total())
	assert.Equal(t, "updated=3 skipped=1 failed=2 unprocessed=4", s.String())
}

func TestRunPass_UpdatesStaleSeries(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	env.register(t, "A", "Daily", nil, "")
	env.register(t, "B", "Weekly", ago(3*day), "")
	env.register(t, "C", "Monthly", ago(time.Hour), "") // fresh
	env.register(t, "D", "Quarterly", nil, "")
	env.register(t, "E", "Annual", nil, "") // never admitted
	for _, id := range []string{"A", "B", "C", "D", "E"} {
		env.oracle.AddSeries(id, "Monthly", 3)
	}
	env.oracle.Script("D", testutil.FetchResult{Err: oracle.NewFetchError(oracle.KindNotFound, "D", "gone")})

	res, err := env.engine.RunPass(ctx, PassOptions{})
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 4, res.Candidates)
	assert.Equal(t, Summary{Updated: 2, Skipped: 1, Failed: 1}, res.Summary)
	assert.Equal(t, 0, env.oracle.FetchCalls("E"))

	// One session per worker, all closed, never shared.
	assert.Equal(t, 2, env.oracle.SessionsCreated())
	assert.Equal(t, 2, env.oracle.SessionsClosed())
	assert.False(t, env.oracle.ConcurrentUse())

	entries := env.logEntries(t)
	last := entries[len(entries)-1]
	assert.Equal(t, series.SystemID, last.SeriesID)
	assert.Equal(t, series.ActionDailyUpdate, last.Action)
	assert.Equal(t, series.StatusSuccess, last.Status)
	assert.Equal(t, "run run-1: updated=2 skipped=1 failed=1 unprocessed=0", last.Message)

	// Two successes, one failure, one pass row.
	assert.Len(t, entries, 4)
}

func TestRunPass_LimitAndMinDays(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	env.register(t, "A", "Daily", nil, "")
	env.register(t, "B", "Daily", ago(5*day), "")
	env.register(t, "C", "Daily", ago(1*day), "")
	for _, id := range []string{"A", "B", "C"} {
		env.oracle.AddSeries(id, "Daily", 1)
	}

	minDays := 2
	res, err := env.engine.RunPass(ctx, PassOptions{MinDays: &minDays, Limit: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, env.oracle.FetchCalls("A"))
	assert.Equal(t, 0, env.oracle.FetchCalls("B"))
	assert.Equal(t, 0, env.oracle.FetchCalls("C"))
}

func TestRunPass_NoCandidates(t *testing.T) {
	env := newTestEnv(t, testConfig())

	res, err := env.engine.RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, Summary{}, res.Summary)
	assert.Equal(t, 0, env.oracle.SessionsCreated())
	assert.Equal(t, 1, env.count(t, "SELECT COUNT(*) FROM update_log WHERE action = 'DAILY_UPDATE'"))
}

func TestRunPass_SessionFailureLeavesPartitionUnprocessed(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	env := newTestEnv(t, cfg)

	env.register(t, "A", "Daily", nil, "")
	env.register(t, "B", "Daily", nil, "")
	env.oracle.FailSessions(errors.New("no browser"))

	res, err := env.engine.RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Unprocessed: 2}, res.Summary)
	assert.Equal(t, 0, env.oracle.TotalFetchCalls())

	assert.Equal(t, 1, env.count(t,
		"SELECT COUNT(*) FROM update_log WHERE series_id = 'SYSTEM' AND status = 'ERROR' AND message = ?",
		"worker 1: session: no browser"))
}

func TestRunPass_OneWorkerFailsOthersContinue(t *testing.T) {
	env := newTestEnv(t, testConfig())
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("S%d", i)
		env.register(t, id, "Daily", nil, "")
		env.oracle.AddSeries(id, "Daily", 1)
	}
	env.oracle.FailSessions(errors.New("no browser"))

	res, err := env.engine.RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 2, Unprocessed: 2}, res.Summary)
}

func TestRunWorkers_SessionFailureDoesNotCancelSiblings(t *testing.T) {
	env := newTestEnv(t, testConfig())
	for _, id := range []string{"A", "B"} {
		env.register(t, id, "Daily", nil, "")
		env.oracle.AddSeries(id, "Daily", 1)
	}
	env.oracle.FailSessions(errors.New("no browser"))

	partitions := [][]Task{
		{ForceTask("A", series.ActionUpdate)},
		{ForceTask("B", series.ActionUpdate)},
	}
	sum, err := env.engine.runWorkers(context.Background(), partitions, NewPacer(0, 0, 1))

	assert.Equal(t, Summary{Updated: 1, Unprocessed: 1}, sum)
	var serr *SessionError
	require.ErrorAs(t, err, &serr)
	assert.EqualError(t, serr.Err, "no browser")
	assert.Equal(t, 1, env.oracle.TotalFetchCalls())
	assert.Equal(t, 1, env.oracle.SessionsClosed())
}

func TestWorker_VisitsHomeAfterFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	env := newTestEnv(t, cfg)

	env.register(t, "A", "Daily", nil, "")
	env.register(t, "B", "Daily", nil, "")
	env.oracle.AddSeries("B", "Daily", 1)
	env.oracle.FailVisits(errors.New("still blocked"))

	res, err := env.engine.RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1, Failed: 1}, res.Summary)

	// Warm-up plus the home visit after A; visit failures do not stop the worker.
	assert.Len(t, env.oracle.Visits(), 2)
}

func TestWorker_RebuildsSessionAfterRepeatedDenial(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.PageAttempts = 1
	env := newTestEnv(t, cfg)

	denied := testutil.FetchResult{Err: oracle.NewFetchError(oracle.KindAccessDenied, "", "captcha")}
	for _, id := range []string{"A", "B", "C"} {
		env.register(t, id, "Daily", nil, "")
		env.oracle.Script(id, denied)
	}
	env.register(t, "D", "Daily", nil, "")
	env.oracle.AddSeries("D", "Daily", 2)

	res, err := env.engine.RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)

	assert.Equal(t, Summary{Updated: 1, Failed: 3}, res.Summary)
	assert.Equal(t, 2, env.oracle.SessionsCreated())
	assert.Equal(t, 2, env.oracle.SessionsClosed())
}

func TestWorker_RebuildFailureStopsWorker(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.PageAttempts = 1
	cfg.SessionResetAfter = 2
	env := newTestEnv(t, cfg)

	denied := testutil.FetchResult{Err: oracle.NewFetchError(oracle.KindAccessDenied, "", "captcha")}
	for _, id := range []string{"A", "B", "C", "D"} {
		env.register(t, id, "Daily", nil, "")
		env.oracle.Script(id, denied)
	}
	env.oracle.FailSessions(nil, errors.New("relaunch failed"))

	res, err := env.engine.RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)

	assert.Equal(t, Summary{Failed: 2, Unprocessed: 2}, res.Summary)
	assert.Equal(t, 1, env.count(t,
		"SELECT COUNT(*) FROM update_log WHERE series_id = 'SYSTEM' AND status = 'ERROR'"))
}

func TestSeed_DedupAndLimit(t *testing.T) {
	env := newTestEnv(t, testConfig())
	for _, id := range []string{"GDP", "CPI", "UNRATE"} {
		env.oracle.AddSeries(id, "Monthly", 2)
	}

	sum, err := env.engine.Seed(context.Background(), []string{"GDP", "CPI", "GDP", "", "UNRATE"}, 2)
	require.NoError(t, err)

	assert.Equal(t, Summary{Updated: 2}, sum)
	assert.Equal(t, 1, env.oracle.FetchCalls("GDP"))
	assert.Equal(t, 1, env.oracle.FetchCalls("CPI"))
	assert.Equal(t, 0, env.oracle.FetchCalls("UNRATE"))
}

func TestSeed_CancelledContext(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.oracle.AddSeries("GDP", "Monthly", 2)
	env.oracle.AddSeries("CPI", "Monthly", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := env.engine.Seed(ctx, []string{"GDP", "CPI"}, 0)
	require.NoError(t, err)
	assert.Equal(t, Summary{Unprocessed: 2}, sum)
	assert.Equal(t, 0, env.oracle.TotalFetchCalls())
}

func TestFetchSeries(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.oracle.AddSeries("GDP", "Quarterly", 6)

	out, err := env.engine.FetchSeries(context.Background(), "GDP")
	require.NoError(t, err)
	assert.Equal(t, StateUpserted, out.State)
	assert.Equal(t, 6, env.count(t, "SELECT COUNT(*) FROM series_values"))
	assert.Equal(t, 1, env.oracle.SessionsClosed())
}

func TestFetchSeries_SessionFailure(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.oracle.FailSessions(errors.New("no browser"))

	_, err := env.engine.FetchSeries(context.Background(), "GDP")
	require.Error(t, err)
	assert.True(t, IsSessionError(err))
}

// steppingClock advances by step on every read.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func TestRunLoop_StopsWhenBudgetSpent(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = time.Hour
	env := newTestEnv(t, cfg)
	clock := &steppingClock{now: testNow, step: 5 * time.Minute}
	eng := New(env.store, env.oracle, cfg, WithClock(clock), WithMetrics(env.metrics), WithSeed(1))

	results, err := eng.RunLoop(context.Background(), PassOptions{}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Less(t, len(results), 12)
}

func TestRunLoop_ZeroBudgetRunsOnePass(t *testing.T) {
	env := newTestEnv(t, testConfig())

	results, err := env.engine.RunLoop(context.Background(), PassOptions{}, time.Hour)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
