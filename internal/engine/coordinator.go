package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/serieswatch/internal/metrics"
	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/series"
)

// State is a step of the per-series update state machine.
type State string

const (
	StatePending  State = "PENDING"
	StateChecking State = "CHECKING"
	StateSkipped  State = "SKIPPED"
	StateFetching State = "FETCHING"
	StateUpserted State = "UPSERTED"
	StateFailed   State = "FAILED"

	// StateInterrupted ends a fetch cut short by cancellation. Nothing is
	// written, so the series stays due for the next run.
	StateInterrupted State = "INTERRUPTED"
)

// Mode selects how much of the state machine runs.
type Mode int

const (
	// ModeUpdate runs the staleness check and the last-updated peek
	// before fetching.
	ModeUpdate Mode = iota

	// ModeForce goes straight to FETCHING.
	ModeForce
)

// ErrNoObservations is recorded when a fetch returns metadata but no points.
const ErrNoObservations = "no observations returned"

// Task is one unit of work for the coordinator.
//
// In ModeUpdate, Meta must carry the stored row (last_checked, frequency,
// last_updated). In ModeForce only Meta.SeriesID is read.
type Task struct {
	Meta   series.Metadata
	Mode   Mode
	Action series.Action
}

// ForceTask builds a ModeForce task for id.
func ForceTask(id string, action series.Action) Task {
	return Task{Meta: series.Metadata{SeriesID: id}, Mode: ModeForce, Action: action}
}

// Outcome is the terminal result of Process.
type Outcome struct {
	SeriesID string
	State    State

	// Filtered is set when the fetched frequency was not admitted.
	Filtered bool

	// Unchanged is set when the peek matched the stored last_updated.
	Unchanged bool

	Observations int
	Err          error

	// Path lists every state visited, PENDING first.
	Path []State
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Path = append(o.Path, s)
}

// Coordinator drives one series through the update state machine against a
// caller-owned session. Every attempt that ends UPSERTED or FAILED leaves
// exactly one log row.
//
// Thread-safety: Coordinator holds no per-call state and may be shared by
// workers, each passing its own session.
type Coordinator struct {
	store   Store
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	policy  oracle.RetryPolicy
	homeURL string
	peek    bool
}

// Process runs task to a terminal state.
func (c *Coordinator) Process(ctx context.Context, sess oracle.Session, task Task) Outcome {
	id := task.Meta.SeriesID
	action := task.Action
	if action == "" {
		action = series.ActionUpdate
	}
	logger := c.logger.With("series_id", id, "action", string(action))

	out := Outcome{SeriesID: id}
	out.enter(StatePending)

	if task.Mode == ModeUpdate {
		out.enter(StateChecking)
		if !series.NeedsCheck(task.Meta.LastChecked, task.Meta.Frequency, c.clock.Now()) {
			logger.DebugContext(ctx, "series is fresh")
			c.touch(ctx, logger, id)
			return c.finish(out, action, StateSkipped)
		}
		if c.peek && task.Meta.LastUpdated != "" {
			remote, err := c.peekLastUpdated(ctx, sess, id)
			switch {
			case err != nil:
				logger.DebugContext(ctx, "peek failed, fetching", "error", err)
			case strings.TrimSpace(remote) == strings.TrimSpace(task.Meta.LastUpdated):
				logger.DebugContext(ctx, "provider unchanged", "last_updated", remote)
				c.touch(ctx, logger, id)
				out.Unchanged = true
				return c.finish(out, action, StateSkipped)
			}
		}
	}

	out.enter(StateFetching)
	fs, err := c.fetch(ctx, sess, id, logger)
	if err != nil {
		if ctx.Err() != nil {
			out.Err = err
			logger.InfoContext(ctx, "fetch interrupted", "error", err)
			return c.finish(out, action, StateInterrupted)
		}
		return c.fail(ctx, logger, out, action, err)
	}

	if !series.IsAdmittedFrequency(fs.Metadata.Frequency) {
		logger.InfoContext(ctx, "frequency not admitted, skipping", "frequency", fs.Metadata.Frequency)
		c.touch(ctx, logger, id)
		out.Filtered = true
		return c.finish(out, action, StateSkipped)
	}

	if len(fs.Observations) == 0 {
		return c.fail(ctx, logger, out, action,
			oracle.NewFetchError(oracle.KindParseFailure, id, ErrNoObservations))
	}

	if fs.Metadata.SeriesID == "" {
		fs.Metadata.SeriesID = id
	}
	if err := c.store.SaveSeries(context.WithoutCancel(ctx), fs, action, c.clock.Now()); err != nil {
		return c.fail(ctx, logger, out, action, fmt.Errorf("store: %w", err))
	}

	out.Observations = len(fs.Observations)
	logger.InfoContext(ctx, "series stored", "observations", out.Observations)
	return c.finish(out, action, StateUpserted)
}

// peekLastUpdated reports a panicking session as an UNKNOWN error so the
// caller falls through to a full fetch.
func (c *Coordinator) peekLastUpdated(ctx context.Context, sess oracle.Session, id string) (remote string, err error) {
	defer func() {
		if r := recover(); r != nil {
			remote = ""
			err = oracle.NewFetchError(oracle.KindUnknown, id, fmt.Sprintf("peek panic: %v", r))
		}
	}()
	return sess.PeekLastUpdated(ctx, id)
}

// fetch wraps FetchSeries in the transient retry policy. A panicking
// session is reported as an UNKNOWN fault.
func (c *Coordinator) fetch(ctx context.Context, sess oracle.Session, id string, logger *slog.Logger) (*series.FetchedSeries, error) {
	policy := c.policy
	policy.Reset = func(ctx context.Context) error {
		return sess.Visit(ctx, c.homeURL)
	}
	return oracle.Retry(ctx, policy, logger, func(ctx context.Context) (fs *series.FetchedSeries, err error) {
		defer func() {
			if r := recover(); r != nil {
				fs = nil
				err = oracle.NewFetchError(oracle.KindUnknown, id, fmt.Sprintf("panic: %v", r))
			}
		}()
		fs, err = sess.FetchSeries(ctx, id)
		if err == nil && fs == nil {
			err = oracle.NewFetchError(oracle.KindParseFailure, id, "empty result")
		}
		return fs, err
	})
}

func (c *Coordinator) fail(ctx context.Context, logger *slog.Logger, out Outcome, action series.Action, err error) Outcome {
	out.Err = err
	kind := oracle.KindOf(err)
	c.metrics.FetchFailures.WithLabelValues(string(kind)).Inc()
	logger.WarnContext(ctx, "series failed", "kind", string(kind), "error", err)

	// Log writes survive cancellation so an interrupted attempt still
	// leaves its row.
	wctx := context.WithoutCancel(ctx)
	now := c.clock.Now()
	msg := err.Error()
	if rerr := c.store.RecordFailure(wctx, out.SeriesID, action, msg, now); rerr != nil {
		logger.ErrorContext(ctx, "recording failure", "error", rerr)
		_, lerr := c.store.AppendLog(wctx, series.LogEntry{
			Timestamp: series.FormatTime(now),
			SeriesID:  out.SeriesID,
			Action:    action,
			Status:    series.StatusError,
			Message:   msg,
		})
		if lerr != nil {
			logger.ErrorContext(ctx, "fallback log write failed, dropping", "error", lerr)
		}
	}
	return c.finish(out, action, StateFailed)
}

func (c *Coordinator) touch(ctx context.Context, logger *slog.Logger, id string) {
	if err := c.store.TouchLastChecked(context.WithoutCancel(ctx), id, c.clock.Now()); err != nil {
		logger.WarnContext(ctx, "touching last_checked", "error", err)
	}
}

func (c *Coordinator) finish(out Outcome, action series.Action, s State) Outcome {
	out.enter(s)
	c.metrics.SeriesProcessed.WithLabelValues(string(action), strings.ToLower(string(s))).Inc()
	return out
}
