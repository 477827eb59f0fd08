package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/series"
)

// Summary counts terminal outcomes. Unprocessed counts series a worker
// never finished, either because it was cancelled or because it lost its
// session.
type Summary struct {
	Updated     int `json:"updated"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	Unprocessed int `json:"unprocessed"`
}

// Add counts one outcome.
func (s *Summary) Add(o Outcome) {
	switch o.State {
	case StateUpserted:
		s.Updated++
	case StateSkipped:
		s.Skipped++
	case StateFailed:
		s.Failed++
	case StateInterrupted:
		s.Unprocessed++
	}
}

// Merge adds other's counts to s.
func (s *Summary) Merge(other Summary) {
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Unprocessed += other.Unprocessed
}

// Total is the number of series the summary accounts for.
func (s Summary) Total() int {
	return s.Updated + s.Skipped + s.Failed + s.Unprocessed
}

func (s Summary) String() string {
	return fmt.Sprintf("updated=%d skipped=%d failed=%d unprocessed=%d",
		s.Updated, s.Skipped, s.Failed, s.Unprocessed)
}

type workerResult struct {
	summary Summary
	err     error
}

// runWorkers runs one worker per partition and sums their summaries once
// all have returned. Each worker owns its session for its lifetime.
//
// The group only joins the workers: every goroutine returns nil so one
// worker's session failure never cancels its siblings. Session errors travel
// with the summaries and are joined into the returned error.
func (e *Engine) runWorkers(ctx context.Context, partitions [][]Task, pacer *Pacer) (Summary, error) {
	results := make(chan workerResult, len(partitions))

	var g errgroup.Group
	for i, part := range partitions {
		worker := i + 1
		g.Go(func() error {
			sum, err := e.runWorker(ctx, worker, part, pacer)
			results <- workerResult{summary: sum, err: err}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	var (
		total Summary
		errs  []error
	)
	for r := range results {
		total.Merge(r.summary)
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	return total, errors.Join(errs...)
}

func (e *Engine) runWorker(ctx context.Context, worker int, tasks []Task, pacer *Pacer) (Summary, error) {
	logger := e.logger.With("worker", worker)
	var sum Summary
	action := series.ActionUpdate
	if len(tasks) > 0 && tasks[0].Action != "" {
		action = tasks[0].Action
	}

	sess, err := e.factory.NewSession(ctx)
	if err != nil {
		sum.Unprocessed = len(tasks)
		return sum, e.sessionFailure(ctx, worker, action, err)
	}
	defer func() {
		if sess != nil {
			if cerr := sess.Close(); cerr != nil {
				logger.WarnContext(ctx, "closing session", "error", cerr)
			}
		}
	}()

	home := e.factory.HomeURL()
	if err := sess.Visit(ctx, home); err != nil {
		logger.WarnContext(ctx, "warm-up visit failed", "error", err)
	}

	denied := 0
	for i, task := range tasks {
		if i > 0 {
			if err := pacer.Wait(ctx); err != nil {
				sum.Unprocessed += len(tasks) - i
				break
			}
		}
		if ctx.Err() != nil {
			sum.Unprocessed += len(tasks) - i
			break
		}

		out := e.coord.Process(ctx, sess, task)
		sum.Add(out)
		if out.State != StateFailed {
			denied = 0
			continue
		}

		if oracle.IsAccessDenied(out.Err) {
			denied++
		} else {
			denied = 0
		}
		if e.cfg.SessionResetAfter > 0 && denied >= e.cfg.SessionResetAfter {
			logger.WarnContext(ctx, "rebuilding session", "consecutive_denied", denied)
			if cerr := sess.Close(); cerr != nil {
				logger.WarnContext(ctx, "closing session", "error", cerr)
			}
			sess = nil
			fresh, err := e.factory.NewSession(ctx)
			if err != nil {
				sum.Unprocessed += len(tasks) - i - 1
				return sum, e.sessionFailure(ctx, worker, action, err)
			}
			sess = fresh
			denied = 0
			if err := sess.Visit(ctx, home); err != nil {
				logger.WarnContext(ctx, "warm-up visit failed", "error", err)
			}
			continue
		}

		if err := sess.Visit(ctx, home); err != nil {
			logger.WarnContext(ctx, "reset visit failed", "error", err)
		}
	}
	return sum, nil
}

// sessionFailure records a worker that cannot build a session and returns
// the error reported for it.
func (e *Engine) sessionFailure(ctx context.Context, worker int, action series.Action, err error) error {
	serr := &SessionError{Worker: worker, Err: err}
	e.metrics.SessionFailures.Inc()
	e.logger.ErrorContext(ctx, "worker aborted", "worker", worker, "error", err)

	_, lerr := e.store.AppendLog(context.WithoutCancel(ctx), series.LogEntry{
		Timestamp: series.FormatTime(e.clock.Now()),
		SeriesID:  series.SystemID,
		Action:    action,
		Status:    series.StatusError,
		Message:   serr.Error(),
	})
	if lerr != nil {
		e.logger.ErrorContext(ctx, "logging session failure", "error", lerr)
	}
	return serr
}
