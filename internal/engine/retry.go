package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/serieswatch/internal/series"
)

// RetryResult describes one retry run.
type RetryResult struct {
	Candidates []string `json:"candidates"`
	Sequential bool     `json:"sequential"`
	Summary    Summary  `json:"summary"`
}

// Retrier re-drives series that failed inside a trailing window.
type Retrier struct {
	e *Engine
}

// Retrier returns the engine's retry driver.
func (e *Engine) Retrier() *Retrier {
	return &Retrier{e: e}
}

// FindRetryCandidates returns series with at least one ERROR in the last
// days, ordered by first error, minus those whose in-window RETRY count has
// reached maxRetries. maxRetries <= 0 uses the configured retry limit.
func (r *Retrier) FindRetryCandidates(ctx context.Context, days, maxRetries int) ([]string, error) {
	if maxRetries <= 0 {
		maxRetries = r.e.cfg.RetryLimit
	}
	quota := NewRetryQuota(maxRetries)
	since := r.e.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)

	stats, err := r.e.store.RetryStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("retry stats: %w", err)
	}

	ids := make([]string, 0, len(stats))
	for _, st := range stats {
		if err := quota.Check(st.SeriesID, st.Retries); err != nil {
			r.e.logger.DebugContext(ctx, "retry quota reached", "series_id", st.SeriesID, "error", err)
			continue
		}
		ids = append(ids, st.SeriesID)
	}
	return ids, nil
}

// Run retries the current candidates with action RETRY.
//
// Small batches run on one session with RetryDelay between attempts;
// larger ones fan out over min(Workers, n) workers with the normal pacer.
func (r *Retrier) Run(ctx context.Context, days, maxRetries int) (RetryResult, error) {
	ids, err := r.FindRetryCandidates(ctx, days, maxRetries)
	if err != nil {
		return RetryResult{}, err
	}
	res := RetryResult{Candidates: ids}
	if len(ids) == 0 {
		r.e.logger.InfoContext(ctx, "no series to retry", "days", days)
		return res, nil
	}

	tasks := make([]Task, len(ids))
	for i, id := range ids {
		tasks[i] = ForceTask(id, series.ActionRetry)
	}

	var (
		partitions [][]Task
		pacer      *Pacer
	)
	if len(tasks) <= r.e.cfg.SequentialRetryMax {
		res.Sequential = true
		partitions = Partition(tasks, 1)
		pacer = NewPacer(r.e.cfg.RetryDelay, r.e.cfg.RetryDelay, r.e.seed)
	} else {
		partitions = Partition(tasks, r.e.cfg.Workers)
		pacer = r.e.pacer()
	}

	r.e.logger.InfoContext(ctx, "retrying failed series",
		"count", len(ids), "workers", len(partitions), "sequential", res.Sequential)
	res.Summary, err = r.e.runWorkers(ctx, partitions, pacer)
	if err != nil {
		r.e.logger.WarnContext(ctx, "retry workers lost their session", "error", err)
	}
	return res, nil
}

// RetryFailed runs a retry and returns its summary.
func (r *Retrier) RetryFailed(ctx context.Context, days, maxRetries int) (Summary, error) {
	res, err := r.Run(ctx, days, maxRetries)
	return res.Summary, err
}
