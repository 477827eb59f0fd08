package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/serieswatch/internal/engine"
	"github.com/roach88/serieswatch/internal/metrics"
	"github.com/roach88/serieswatch/internal/series"
	"github.com/roach88/serieswatch/internal/store"
)

// Defaults for Config.
const (
	DefaultErrorThreshold = 100
	DefaultReportDir      = "reports"
)

// Store is what the monitor reads. *store.Store satisfies it.
type Store interface {
	LogEntriesSince(ctx context.Context, since time.Time) ([]series.LogEntry, error)
	CheckIntegrity(ctx context.Context) (store.IntegrityReport, error)
	Stats(ctx context.Context) (store.Stats, error)
	UpdatedSince(ctx context.Context, since time.Time) (int, error)
	TopUpdated(ctx context.Context, since time.Time, limit int) ([]store.SeriesCount, error)
}

var _ Store = (*store.Store)(nil)

// Retrier re-drives failed series. *engine.Retrier satisfies it.
type Retrier interface {
	RetryFailed(ctx context.Context, days, maxRetries int) (engine.Summary, error)
}

// Clock supplies wall time.
type Clock interface {
	Now() time.Time
}

// Config holds monitor settings.
type Config struct {
	ErrorThreshold int
	RetryDays      int
	RetryLimit     int
	ReportDir      string

	// MetricsFile, when set, receives a textfile export after Run.
	MetricsFile string
}

// Monitor analyzes the operation log and runs maintenance tasks.
type Monitor struct {
	store   Store
	cfg     Config
	alerter Alerter
	retrier Retrier
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAlerter replaces the slog alerter.
func WithAlerter(a Alerter) Option {
	return func(m *Monitor) { m.alerter = a }
}

// WithRetrier enables the retry task.
func WithRetrier(r Retrier) Option {
	return func(m *Monitor) { m.retrier = r }
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics records gauges on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// New creates a Monitor.
func New(st Store, cfg Config, opts ...Option) *Monitor {
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = DefaultErrorThreshold
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = DefaultReportDir
	}
	if cfg.RetryDays <= 0 {
		cfg.RetryDays = 1
	}
	m := &Monitor{
		store:  st,
		cfg:    cfg,
		clock:  engine.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.alerter == nil {
		m.alerter = &LogAlerter{Logger: m.logger}
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	return m
}

// CheckAlerts analyzes the last day and sends one alert when the error
// count reaches the threshold. Repeated calls alert again; callers control
// the cadence.
func (m *Monitor) CheckAlerts(ctx context.Context) (bool, error) {
	a, err := m.AnalyzeErrors(ctx, 1)
	if err != nil {
		return false, err
	}
	m.metrics.ErrorCount24h.Set(float64(a.ErrorCount))
	m.metrics.ErrorRate.Set(a.ErrorRate)

	if a.ErrorCount < m.cfg.ErrorThreshold {
		m.logger.InfoContext(ctx, "error count below threshold",
			"errors", a.ErrorCount, "threshold", m.cfg.ErrorThreshold)
		return false, nil
	}

	alert := Alert{
		Subject:    fmt.Sprintf("serieswatch: %d errors in the last 24 hours", a.ErrorCount),
		ErrorCount: a.ErrorCount,
		Threshold:  m.cfg.ErrorThreshold,
		ErrorRate:  a.ErrorRate,
		TopErrors:  a.TopErrorMessages,
		At:         m.clock.Now(),
	}
	if err := m.alerter.Alert(ctx, alert); err != nil {
		return true, fmt.Errorf("send alert: %w", err)
	}
	return true, nil
}

// CheckIntegrity verifies the schema and required fields.
func (m *Monitor) CheckIntegrity(ctx context.Context) (store.IntegrityReport, error) {
	report, err := m.store.CheckIntegrity(ctx)
	if err != nil {
		return report, fmt.Errorf("check integrity: %w", err)
	}
	if report.OK {
		m.logger.InfoContext(ctx, "integrity check passed", "rows", report.RowCounts)
	} else {
		m.logger.WarnContext(ctx, "integrity check found issues", "issues", report.Issues)
	}
	return report, nil
}

// UpdateMetrics refreshes the stored-row and error gauges.
func (m *Monitor) UpdateMetrics(ctx context.Context) error {
	st, err := m.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("update metrics: %w", err)
	}
	m.metrics.StoredSeries.Set(float64(st.SeriesCount))
	m.metrics.StoredValues.Set(float64(st.ValueCount))

	a, err := m.AnalyzeErrors(ctx, 1)
	if err != nil {
		return fmt.Errorf("update metrics: %w", err)
	}
	m.metrics.ErrorCount24h.Set(float64(a.ErrorCount))
	m.metrics.ErrorRate.Set(a.ErrorRate)
	return nil
}

// Tasks selects what Run does.
type Tasks struct {
	Check  bool
	Retry  bool
	Report bool
	Alerts bool

	// Full runs every task.
	Full bool
}

func (t Tasks) any() bool {
	return t.Full || t.Check || t.Retry || t.Report || t.Alerts
}

// RunResult collects what each task produced.
type RunResult struct {
	Integrity  *store.IntegrityReport `json:"integrity,omitempty"`
	Retry      *engine.Summary        `json:"retry,omitempty"`
	ReportPath string                 `json:"report_path,omitempty"`
	Alerted    bool                   `json:"alerted"`
}

// Run executes the selected tasks in order: check, retry, report, alerts.
// A failing task does not stop the others; their errors are joined.
func (m *Monitor) Run(ctx context.Context, tasks Tasks) (RunResult, error) {
	if tasks.Full {
		tasks = Tasks{Check: true, Retry: true, Report: true, Alerts: true}
	}
	var (
		res  RunResult
		errs []error
	)

	if tasks.Check {
		report, err := m.CheckIntegrity(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			res.Integrity = &report
		}
	}

	if tasks.Retry {
		if m.retrier == nil {
			errs = append(errs, errors.New("retry: no retrier configured"))
		} else {
			sum, err := m.retrier.RetryFailed(ctx, m.cfg.RetryDays, m.cfg.RetryLimit)
			if err != nil {
				errs = append(errs, fmt.Errorf("retry: %w", err))
			} else {
				res.Retry = &sum
			}
		}
	}

	if tasks.Report {
		_, p, err := m.WriteReport(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		res.ReportPath = p
	}

	if tasks.Alerts {
		alerted, err := m.CheckAlerts(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		res.Alerted = alerted
	}

	if m.cfg.MetricsFile != "" && tasks.any() {
		if err := m.UpdateMetrics(ctx); err != nil {
			errs = append(errs, err)
		} else if err := m.metrics.WriteTextfile(m.cfg.MetricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}
