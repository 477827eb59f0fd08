package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/serieswatch/internal/metrics"
	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/series"
	"github.com/roach88/serieswatch/internal/store"
)

// Store is the subset of *store.Store the engine writes through.
type Store interface {
	SaveSeries(ctx context.Context, fs *series.FetchedSeries, action series.Action, now time.Time) error
	RecordFailure(ctx context.Context, seriesID string, action series.Action, message string, now time.Time) error
	TouchLastChecked(ctx context.Context, seriesID string, now time.Time) error
	AppendLog(ctx context.Context, entry series.LogEntry) (int64, error)
	GetMetadata(ctx context.Context, seriesID string) (series.Metadata, error)
	SelectCandidates(ctx context.Context, minDays *int, now time.Time) ([]series.Metadata, error)
	RetryStats(ctx context.Context, since time.Time) ([]store.RetryStat, error)
}

var _ Store = (*store.Store)(nil)

// Defaults applied by New.
const (
	DefaultWorkers            = 5
	DefaultRetryLimit         = 3
	DefaultSessionResetAfter  = 3
	DefaultSequentialRetryMax = 5
)

// Config holds engine tuning. Workers, PageAttempts and SequentialRetryMax
// fall back to their defaults when unset and a negative RetryLimit becomes
// DefaultRetryLimit. Delays and Timeout are taken as given: zero delays mean
// no pacing and a zero Timeout lets RunLoop run exactly one pass.
type Config struct {
	Workers int
	Limit   int // 0 means no limit

	MinDelay time.Duration
	MaxDelay time.Duration

	// Timeout is the soft wall-clock budget for RunLoop.
	Timeout time.Duration

	// PageAttempts is the transient-failure budget per fetch.
	PageAttempts int
	RetryBackoff time.Duration

	// RetryLimit is the per-window retry quota.
	RetryLimit int
	RetryDelay time.Duration

	// SequentialRetryMax is the largest candidate count retried on a
	// single worker.
	SequentialRetryMax int

	// SessionResetAfter rebuilds a worker's session after this many
	// consecutive ACCESS_DENIED failures. Zero disables rebuilding.
	SessionResetAfter int

	PeekLastUpdated bool
}

func (c *Config) defaults() {
	if c.Workers < 1 {
		c.Workers = DefaultWorkers
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.PageAttempts < 1 {
		c.PageAttempts = oracle.DefaultAttempts
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = DefaultRetryLimit
	}
	if c.SequentialRetryMax < 1 {
		c.SequentialRetryMax = DefaultSequentialRetryMax
	}
}

// Engine runs update passes, retries and forced fetches against one store
// and one oracle factory.
//
// Thread-safety: an Engine may run one operation at a time; each operation
// manages its own workers internally.
type Engine struct {
	store   Store
	factory oracle.Factory
	cfg     Config
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	runIDs  RunIDGenerator
	seed    uint64
	coord   *Coordinator
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records pass and fetch metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRunIDGenerator replaces the UUIDv7 run id generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithSeed fixes the pacer's random source.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.seed = seed }
}

// New creates an Engine.
func New(st Store, factory oracle.Factory, cfg Config, opts ...Option) *Engine {
	cfg.defaults()
	e := &Engine{
		store:   st,
		factory: factory,
		cfg:     cfg,
		clock:   SystemClock{},
		logger:  slog.Default(),
		runIDs:  UUIDv7Generator{},
		seed:    uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	e.coord = &Coordinator{
		store:   e.store,
		clock:   e.clock,
		logger:  e.logger,
		metrics: e.metrics,
		policy: oracle.RetryPolicy{
			Attempts: cfg.PageAttempts,
			Backoff:  cfg.RetryBackoff,
		},
		homeURL: factory.HomeURL(),
		peek:    cfg.PeekLastUpdated,
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Coordinator returns the per-series state machine used by the engine.
func (e *Engine) Coordinator() *Coordinator {
	return e.coord
}

func (e *Engine) pacer() *Pacer {
	return NewPacer(e.cfg.MinDelay, e.cfg.MaxDelay, e.seed)
}
