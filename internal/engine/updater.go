package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/series"
)

// PassOptions override Config for one pass. Zero values keep the
// configured behaviour.
type PassOptions struct {
	Limit   int
	Workers int

	// MinDays restricts candidates to rows unchecked for at least this
	// many days. Nil selects every admitted row.
	MinDays *int

	// Delay, when set, paces workers uniformly in [Delay, 2*Delay].
	Delay time.Duration
}

// PassResult describes one finished update pass.
type PassResult struct {
	RunID      string        `json:"run_id"`
	Candidates int           `json:"candidates"`
	Summary    Summary       `json:"summary"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
}

// RunPass selects stale candidates, fans them out over the workers and
// records a SYSTEM DAILY_UPDATE entry once every worker has joined.
//
// Per-series failures never fail the pass. The error is non-nil only when
// candidates cannot be read; session failures are logged and counted as
// unprocessed.
func (e *Engine) RunPass(ctx context.Context, opts PassOptions) (PassResult, error) {
	res := PassResult{RunID: e.runIDs.Generate(), Started: e.clock.Now()}
	logger := e.logger.With("run_id", res.RunID)

	rows, err := e.store.SelectCandidates(ctx, opts.MinDays, res.Started)
	if err != nil {
		return res, fmt.Errorf("select candidates: %w", err)
	}
	limit := opts.Limit
	if limit == 0 {
		limit = e.cfg.Limit
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	res.Candidates = len(rows)

	tasks := make([]Task, len(rows))
	for i, md := range rows {
		tasks[i] = Task{Meta: md, Mode: ModeUpdate, Action: series.ActionUpdate}
	}

	workers := opts.Workers
	if workers < 1 {
		workers = e.cfg.Workers
	}
	pacer := e.pacer()
	if opts.Delay > 0 {
		lo, hi := BaseDelayRange(opts.Delay)
		pacer = NewPacer(lo, hi, e.seed)
	}

	partitions := Partition(tasks, workers)
	logger.InfoContext(ctx, "update pass starting",
		"candidates", len(tasks), "workers", len(partitions))

	summary, werr := e.runWorkers(ctx, partitions, pacer)
	if werr != nil {
		logger.WarnContext(ctx, "workers lost their session", "error", werr)
	}
	res.Summary = summary
	res.Duration = e.clock.Now().Sub(res.Started)

	e.metrics.LastPassUnix.Set(float64(e.clock.Now().Unix()))
	e.metrics.PassDuration.Observe(res.Duration.Seconds())
	if e.cfg.Timeout > 0 && res.Duration > e.cfg.Timeout {
		logger.WarnContext(ctx, "pass exceeded time budget",
			"duration", res.Duration, "budget", e.cfg.Timeout)
	}

	_, lerr := e.store.AppendLog(context.WithoutCancel(ctx), series.LogEntry{
		Timestamp: series.FormatTime(e.clock.Now()),
		SeriesID:  series.SystemID,
		Action:    series.ActionDailyUpdate,
		Status:    series.StatusSuccess,
		Message:   fmt.Sprintf("run %s: %s", res.RunID, summary),
	})
	if lerr != nil {
		logger.ErrorContext(ctx, "logging pass summary", "error", lerr)
	}

	logger.InfoContext(ctx, "update pass finished",
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"unprocessed", summary.Unprocessed,
		"duration", res.Duration)
	return res, nil
}

// RunLoop runs passes every interval until the configured timeout is spent
// or ctx is cancelled. The budget is only checked between passes.
func (e *Engine) RunLoop(ctx context.Context, opts PassOptions, interval time.Duration) ([]PassResult, error) {
	deadline := e.clock.Now().Add(e.cfg.Timeout)
	var results []PassResult
	for {
		res, err := e.RunPass(ctx, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)

		if ctx.Err() != nil || !e.clock.Now().Before(deadline) {
			break
		}
		if err := oracle.Sleep(ctx, interval); err != nil {
			break
		}
		if !e.clock.Now().Before(deadline) {
			break
		}
	}
	e.logger.InfoContext(ctx, "update loop finished", "passes", len(results))
	return results, nil
}

// FetchSeries force-fetches a single series on a fresh session.
func (e *Engine) FetchSeries(ctx context.Context, id string) (Outcome, error) {
	sess, err := e.factory.NewSession(ctx)
	if err != nil {
		return Outcome{SeriesID: id}, e.sessionFailure(ctx, 1, series.ActionUpdate, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			e.logger.WarnContext(ctx, "closing session", "error", cerr)
		}
	}()
	return e.coord.Process(ctx, sess, ForceTask(id, series.ActionUpdate)), nil
}

// Seed force-fetches ids, typically read from a discovery snapshot.
// Duplicate ids are fetched once; limit > 0 caps the count.
func (e *Engine) Seed(ctx context.Context, ids []string, limit int) (Summary, error) {
	seen := make(map[string]bool, len(ids))
	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		tasks = append(tasks, ForceTask(id, series.ActionUpdate))
		if limit > 0 && len(tasks) == limit {
			break
		}
	}
	e.logger.InfoContext(ctx, "seeding series", "count", len(tasks))
	return e.runWorkers(ctx, Partition(tasks, e.cfg.Workers), e.pacer())
}
