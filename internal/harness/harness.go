package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/serieswatch/internal/engine"
	"github.com/roach88/serieswatch/internal/metrics"
	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/series"
	"github.com/roach88/serieswatch/internal/store"
	"github.com/roach88/serieswatch/internal/testutil"
)

// DefaultStart is the frozen clock's starting instant.
var DefaultStart = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// Harness is the scenario execution environment.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	oracle *testutil.FakeOracle
	clock  *testutil.FakeClock
}

// Run executes a scenario in a fresh database and returns the result.
//
// Execution flow:
// 1. Open a scratch database and script the portal
// 2. Register the setup series
// 3. Execute steps, checking each expect clause
// 4. Read the log as the trace and evaluate assertions
//
// The error is non-nil only when the environment cannot be built or a step
// cannot run at all; expectation failures land in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "serieswatch-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	h := newHarness(st, scenario)

	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
	}

	entries, err := st.LogEntriesSince(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	for _, e := range entries {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:       e.ID,
			Timestamp: e.Timestamp,
			SeriesID:  e.SeriesID,
			Action:    string(e.Action),
			Status:    string(e.Status),
			Message:   e.Message,
		})
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) *Harness {
	workers := scenario.Workers
	if workers == 0 {
		workers = 1
	}
	retryLimit := scenario.RetryLimit
	if retryLimit == 0 {
		retryLimit = engine.DefaultRetryLimit
	}
	peek := true
	if scenario.PeekLastUpdated != nil {
		peek = *scenario.PeekLastUpdated
	}

	h := &Harness{
		store:  st,
		oracle: testutil.NewFakeOracle(),
		clock:  testutil.NewFakeClock(DefaultStart),
	}
	h.engine = engine.New(st, h.oracle, engine.Config{
		Workers:           workers,
		RetryLimit:        retryLimit,
		SessionResetAfter: engine.DefaultSessionResetAfter,
		PeekLastUpdated:   peek,
	},
		engine.WithClock(h.clock),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
		engine.WithMetrics(metrics.New()),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithSeed(1),
	)
	return h
}

// setup registers series rows and scripts the portal.
func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	frequencies := map[string]string{}
	for _, s := range scenario.Series {
		md := series.Metadata{
			SeriesID:    s.ID,
			Frequency:   s.Frequency,
			LastUpdated: s.LastUpdated,
		}
		if s.CheckedDaysAgo != nil {
			ts := series.FormatTime(h.clock.Now().Add(-days(*s.CheckedDaysAgo)))
			md.LastChecked = &ts
		}
		if _, err := h.store.RegisterSeries(ctx, md); err != nil {
			return fmt.Errorf("register %s: %w", s.ID, err)
		}
		frequencies[s.ID] = s.Frequency
	}

	ids := make([]string, 0, len(scenario.Oracle))
	for id := range scenario.Oracle {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		results := make([]testutil.FetchResult, 0, len(scenario.Oracle[id]))
		for _, r := range scenario.Oracle[id] {
			results = append(results, scriptedResult(id, frequencies[id], r))
		}
		h.oracle.Script(id, results...)
	}
	for id, value := range scenario.Peeks {
		h.oracle.SetPeek(id, value, nil)
	}
	return nil
}

func scriptedResult(id, setupFrequency string, r Response) testutil.FetchResult {
	if r.Error != "" {
		msg := r.Message
		if msg == "" {
			msg = "scripted failure"
		}
		return testutil.FetchResult{Err: oracle.NewFetchError(oracle.Kind(r.Error), id, msg)}
	}
	freq := r.Frequency
	if freq == "" {
		freq = setupFrequency
	}
	if freq == "" {
		freq = string(series.Monthly)
	}
	fs := testutil.SampleSeries(id, freq, r.Observations)
	if r.LastUpdated != "" {
		fs.Metadata.LastUpdated = r.LastUpdated
	}
	return testutil.FetchResult{Series: fs}
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	res := StepResult{Op: step.Op, Series: step.Series}

	switch step.Op {
	case OpAdvance:
		h.clock.Advance(days(step.Days))
		result.Steps = append(result.Steps, res)
		return nil

	case OpPass:
		pass, err := h.engine.RunPass(ctx, engine.PassOptions{
			Limit:   step.Limit,
			MinDays: step.MinDays,
		})
		if err != nil {
			return err
		}
		res.Summary = pass.Summary

	case OpRetry:
		window := int(step.Days)
		if window <= 0 {
			window = 1
		}
		sum, err := h.engine.Retrier().RetryFailed(ctx, window, step.MaxRetries)
		if err != nil {
			return err
		}
		res.Summary = sum

	case OpFetch:
		out, err := h.engine.FetchSeries(ctx, step.Series)
		if err != nil {
			return err
		}
		res.Summary.Add(out)
	}

	result.Steps = append(result.Steps, res)
	for _, msg := range checkSummary(index, step.Expect, res.Summary) {
		result.AddError(msg)
	}
	return nil
}

func checkSummary(index int, expect map[string]int, got engine.Summary) []string {
	actual := map[string]int{
		"updated":     got.Updated,
		"skipped":     got.Skipped,
		"failed":      got.Failed,
		"unprocessed": got.Unprocessed,
	}
	var errs []string
	for _, k := range summaryKeys {
		want, ok := expect[k]
		if !ok {
			continue
		}
		if actual[k] != want {
			errs = append(errs, fmt.Sprintf("steps[%d]: %s = %d, want %d (%s)", index, k, actual[k], want, got))
		}
	}
	return errs
}

func days(d float64) time.Duration {
	return time.Duration(d * float64(24*time.Hour))
}
