package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/serieswatch/internal/engine"
	"github.com/roach88/serieswatch/internal/metrics"
	"github.com/roach88/serieswatch/internal/series"
	"github.com/roach88/serieswatch/internal/store"
	"github.com/roach88/serieswatch/internal/testutil"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type recordingAlerter struct {
	alerts []Alert
	err    error
}

func (r *recordingAlerter) Alert(ctx context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

type stubRetrier struct {
	calls   int
	days    int
	retries int
	sum     engine.Summary
	err     error
}

func (s *stubRetrier) RetryFailed(ctx context.Context, days, maxRetries int) (engine.Summary, error) {
	s.calls++
	s.days, s.retries = days, maxRetries
	return s.sum, s.err
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestMonitor(t *testing.T, st Store, cfg Config, opts ...Option) (*Monitor, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	opts = append([]Option{
		WithClock(testutil.NewFakeClock(testNow)),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithMetrics(m),
	}, opts...)
	return New(st, cfg, opts...), m
}

func appendLog(t *testing.T, st *store.Store, at time.Time, id string, status series.Status, msg string) {
	t.Helper()
	_, err := st.AppendLog(context.Background(), series.LogEntry{
		Timestamp: series.FormatTime(at),
		SeriesID:  id,
		Action:    series.ActionUpdate,
		Status:    status,
		Message:   msg,
	})
	require.NoError(t, err)
}

func TestAnalyzeErrors_ErrorRate(t *testing.T) {
	st := setupStore(t)
	recent := testNow.Add(-time.Hour)
	for i := 0; i < 8; i++ {
		appendLog(t, st, recent, fmt.Sprintf("OK%d", i), series.StatusSuccess, "Stored 5 observations")
	}
	appendLog(t, st, recent, "BAD", series.StatusError, "TIMEOUT: slow")
	appendLog(t, st, recent, "BAD", series.StatusError, "NOT_FOUND: gone")
	appendLog(t, st, testNow.Add(-3*24*time.Hour), "OLD", series.StatusError, "ancient")

	mon, _ := newTestMonitor(t, st, Config{})
	a, err := mon.AnalyzeErrors(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 10, a.Total)
	assert.Equal(t, 2, a.ErrorCount)
	assert.Equal(t, 8, a.SuccessCount)
	assert.InDelta(t, 0.2, a.ErrorRate, 1e-9)
	assert.Equal(t, []SeriesErrors{{SeriesID: "BAD", Count: 2}}, a.TopErrorSeries)
	assert.Equal(t, []MessageCount{
		{Message: "TIMEOUT: slow", Count: 1},
		{Message: "NOT_FOUND: gone", Count: 1},
	}, a.TopErrorMessages)
}

func TestAnalyzeErrors_EmptyWindow(t *testing.T) {
	mon, _ := newTestMonitor(t, setupStore(t), Config{})
	a, err := mon.AnalyzeErrors(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Total)
	assert.Equal(t, 0.0, a.ErrorRate)
	assert.Empty(t, a.TopErrorSeries)
	assert.NotNil(t, a.TopErrorMessages)
}

func TestAnalyze_RankingTiesKeepEncounterOrder(t *testing.T) {
	var entries []series.LogEntry
	add := func(id, msg string) {
		entries = append(entries, series.LogEntry{SeriesID: id, Status: series.StatusError, Message: msg})
	}
	add("C", "m3")
	add("A", "m1")
	add("B", "m2")
	add("A", "m1")
	for i := 0; i < 12; i++ {
		add(fmt.Sprintf("X%02d", i), fmt.Sprintf("unique %d", i))
	}

	a := analyze(entries, 1)
	require.Len(t, a.TopErrorSeries, TopN)
	assert.Equal(t, "A", a.TopErrorSeries[0].SeriesID)
	assert.Equal(t, "C", a.TopErrorSeries[1].SeriesID)
	assert.Equal(t, "B", a.TopErrorSeries[2].SeriesID)
	assert.Equal(t, "X00", a.TopErrorSeries[3].SeriesID)
	assert.Equal(t, "m1", a.TopErrorMessages[0].Message)
	assert.Len(t, a.TopErrorMessages, TopN)
}

func TestCheckAlerts(t *testing.T) {
	tests := []struct {
		name      string
		errors    int
		wantAlert bool
	}{
		{name: "below threshold", errors: 2, wantAlert: false},
		{name: "at threshold", errors: 3, wantAlert: true},
		{name: "above threshold", errors: 5, wantAlert: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := setupStore(t)
			for i := 0; i < tt.errors; i++ {
				appendLog(t, st, testNow.Add(-time.Hour), "GDP", series.StatusError, "boom")
			}
			alerter := &recordingAlerter{}
			mon, m := newTestMonitor(t, st, Config{ErrorThreshold: 3}, WithAlerter(alerter))

			alerted, err := mon.CheckAlerts(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantAlert, alerted)
			if tt.wantAlert {
				require.Len(t, alerter.alerts, 1)
				assert.Equal(t, tt.errors, alerter.alerts[0].ErrorCount)
				assert.Equal(t, 3, alerter.alerts[0].Threshold)
			} else {
				assert.Empty(t, alerter.alerts)
			}
			assert.Equal(t, float64(tt.errors), promtest.ToFloat64(m.ErrorCount24h))
		})
	}
}

func TestCheckAlerts_NoDedupAcrossCalls(t *testing.T) {
	st := setupStore(t)
	appendLog(t, st, testNow, "GDP", series.StatusError, "boom")
	alerter := &recordingAlerter{}
	mon, _ := newTestMonitor(t, st, Config{ErrorThreshold: 1}, WithAlerter(alerter))

	for i := 0; i < 2; i++ {
		_, err := mon.CheckAlerts(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, alerter.alerts, 2)
}

func TestCheckAlerts_AlerterError(t *testing.T) {
	st := setupStore(t)
	appendLog(t, st, testNow, "GDP", series.StatusError, "boom")
	mon, _ := newTestMonitor(t, st, Config{ErrorThreshold: 1},
		WithAlerter(&recordingAlerter{err: errors.New("smtp down")}))

	alerted, err := mon.CheckAlerts(context.Background())
	assert.True(t, alerted)
	assert.ErrorContains(t, err, "smtp down")
}

func TestWriteReport(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	fs := testutil.SampleSeries("GDP", "Quarterly", 4)
	require.NoError(t, st.SaveSeries(ctx, fs, series.ActionUpdate, testNow.Add(-time.Hour)))
	appendLog(t, st, testNow.Add(-time.Hour), "CPI", series.StatusError, "boom")

	dir := filepath.Join(t.TempDir(), "reports")
	mon, _ := newTestMonitor(t, st, Config{ReportDir: dir})

	r, p, err := mon.WriteReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_20240315_120000.json"), p)
	assert.True(t, r.Integrity.OK)
	assert.Equal(t, 1, r.UpdatedLast24h)
	assert.Equal(t, 1, r.Day.ErrorCount)
	assert.Equal(t, []store.SeriesCount{{SeriesID: "GDP", Count: 1}}, r.TopUpdated)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"integrity", "errors_24h", "errors_7d", "updated_last_24h", "top_updated_7d", "frequencies"} {
		assert.Contains(t, decoded, key)
	}
}

func TestRun_Full(t *testing.T) {
	st := setupStore(t)
	appendLog(t, st, testNow, "GDP", series.StatusError, "boom")

	dir := t.TempDir()
	metricsFile := filepath.Join(dir, "serieswatch.prom")
	retrier := &stubRetrier{sum: engine.Summary{Updated: 1}}
	alerter := &recordingAlerter{}
	mon, _ := newTestMonitor(t, st,
		Config{ErrorThreshold: 1, RetryDays: 2, RetryLimit: 4, ReportDir: dir, MetricsFile: metricsFile},
		WithRetrier(retrier), WithAlerter(alerter))

	res, err := mon.Run(context.Background(), Tasks{Full: true})
	require.NoError(t, err)

	require.NotNil(t, res.Integrity)
	assert.True(t, res.Integrity.OK)
	require.NotNil(t, res.Retry)
	assert.Equal(t, 1, res.Retry.Updated)
	assert.Equal(t, 2, retrier.days)
	assert.Equal(t, 4, retrier.retries)
	assert.NotEmpty(t, res.ReportPath)
	assert.True(t, res.Alerted)
	assert.Len(t, alerter.alerts, 1)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "serieswatch_error_count_24h 1"))
}

func TestRun_SelectedTasksOnly(t *testing.T) {
	retrier := &stubRetrier{}
	mon, _ := newTestMonitor(t, setupStore(t), Config{ReportDir: t.TempDir()}, WithRetrier(retrier))

	res, err := mon.Run(context.Background(), Tasks{Check: true})
	require.NoError(t, err)
	assert.NotNil(t, res.Integrity)
	assert.Nil(t, res.Retry)
	assert.Empty(t, res.ReportPath)
	assert.Equal(t, 0, retrier.calls)
}

func TestRun_ErrorsJoinedOthersContinue(t *testing.T) {
	mon, _ := newTestMonitor(t, setupStore(t), Config{ReportDir: t.TempDir()},
		WithRetrier(&stubRetrier{err: errors.New("no session")}))

	res, err := mon.Run(context.Background(), Tasks{Retry: true, Report: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session")
	assert.NotEmpty(t, res.ReportPath)
}

func TestRun_RetryWithoutRetrier(t *testing.T) {
	mon, _ := newTestMonitor(t, setupStore(t), Config{})
	_, err := mon.Run(context.Background(), Tasks{Retry: true})
	assert.ErrorContains(t, err, "no retrier")
}

func TestUpdateMetrics(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveSeries(ctx, testutil.SampleSeries("GDP", "Quarterly", 4), series.ActionUpdate, testNow))
	appendLog(t, st, testNow, "CPI", series.StatusError, "boom")

	mon, m := newTestMonitor(t, st, Config{})
	require.NoError(t, mon.UpdateMetrics(ctx))

	assert.Equal(t, float64(1), promtest.ToFloat64(m.StoredSeries))
	assert.Equal(t, float64(4), promtest.ToFloat64(m.StoredValues))
	assert.InDelta(t, 0.5, promtest.ToFloat64(m.ErrorRate), 1e-9)
}

func TestLogAlerter(t *testing.T) {
	var buf strings.Builder
	a := &LogAlerter{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	err := a.Alert(context.Background(), Alert{
		Subject:    "too many errors",
		ErrorCount: 120,
		Threshold:  100,
		TopErrors:  []MessageCount{{Message: "TIMEOUT: slow", Count: 80}},
		At:         testNow,
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "errors=120")
	assert.Contains(t, out, `top_error="TIMEOUT: slow"`)
}
