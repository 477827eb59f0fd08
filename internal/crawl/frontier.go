package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/serieswatch/internal/metrics"
	"github.com/roach88/serieswatch/internal/oracle"
)

// Defaults for Config.
const (
	DefaultPrefix          = "fred_series"
	DefaultCheckpointEvery = 10
	nextPageSuffix         = " (next page)"
)

// Pacer delays consecutive page loads. *engine.Pacer satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Config controls a crawl.
type Config struct {
	OutputDir       string
	Prefix          string
	CheckpointEvery int

	Pacer   Pacer
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Now stamps snapshot file names. Defaults to time.Now.
	Now func() time.Time
}

// Result summarizes a finished (or interrupted) crawl.
type Result struct {
	Series       []SeriesRef `json:"-"`
	Discovered   int         `json:"discovered"`
	Categories   int         `json:"categories"`
	FailedPages  int         `json:"failed_pages"`
	Checkpoints  int         `json:"checkpoints"`
	SnapshotPath string      `json:"snapshot_path"`
}

// Frontier walks the category tree breadth first.
//
// A Frontier is single-use: Run may be called once.
type Frontier struct {
	factory oracle.Factory
	cfg     Config
	logger  *slog.Logger

	queue             *categoryQueue
	visitedCategories map[string]bool
	visitedSeries     map[string]bool
	seenIDs           map[string]bool
	found             []SeriesRef
	result            Result
}

// New creates a Frontier over factory.
func New(factory oracle.Factory, cfg Config) *Frontier {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = DefaultCheckpointEvery
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Frontier{
		factory:           factory,
		cfg:               cfg,
		logger:            logger,
		queue:             newCategoryQueue(),
		visitedCategories: map[string]bool{},
		visitedSeries:     map[string]bool{},
		seenIDs:           map[string]bool{},
	}
}

// Run crawls from root until the queue is empty and writes the complete
// snapshot. On cancellation it writes a progress snapshot and returns the
// partial result with ctx's error.
func (f *Frontier) Run(ctx context.Context, root CategoryRef) (Result, error) {
	sess, err := f.factory.NewSession(ctx)
	if err != nil {
		return f.result, fmt.Errorf("crawl session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			f.logger.WarnContext(ctx, "closing session", "error", cerr)
		}
	}()

	if err := sess.Visit(ctx, f.factory.HomeURL()); err != nil {
		f.logger.WarnContext(ctx, "warm-up visit failed", "error", err)
	}

	f.queue.Push(root)
	first := true
	for {
		ref, ok := f.queue.Pop()
		if !ok {
			break
		}
		if f.visitedCategories[ref.URL] {
			continue
		}
		f.visitedCategories[ref.URL] = true

		if !first && f.cfg.Pacer != nil {
			if err := f.cfg.Pacer.Wait(ctx); err != nil {
				return f.interrupted(ctx, err)
			}
		}
		first = false
		if err := ctx.Err(); err != nil {
			return f.interrupted(ctx, err)
		}

		f.visit(ctx, sess, ref)

		if f.result.Categories%f.cfg.CheckpointEvery == 0 {
			if _, err := f.checkpoint(KindProgress); err != nil {
				f.logger.WarnContext(ctx, "writing checkpoint", "error", err)
			}
		}
	}

	p, err := f.checkpoint(KindComplete)
	if err != nil {
		return f.result, err
	}
	f.result.SnapshotPath = p
	f.logger.InfoContext(ctx, "crawl complete",
		"categories", f.result.Categories,
		"series", f.result.Discovered,
		"failed_pages", f.result.FailedPages,
		"snapshot", p)
	return f.result, nil
}

func (f *Frontier) visit(ctx context.Context, sess oracle.Session, ref CategoryRef) {
	logger := f.logger.With("category", ref.Name, "url", ref.URL)
	f.result.Categories++
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.CrawlCategories.Inc()
	}

	page, err := sess.FetchCategory(ctx, ref.URL)
	if err != nil {
		f.result.FailedPages++
		logger.WarnContext(ctx, "category fetch failed", "error", err)
		return
	}

	added := 0
	for _, link := range page.Series {
		if f.visitedSeries[link.URL] {
			continue
		}
		f.visitedSeries[link.URL] = true
		id := SeriesIDFromURL(link.URL)
		if id == "" || f.seenIDs[id] {
			continue
		}
		f.seenIDs[id] = true
		f.found = append(f.found, SeriesRef{
			SeriesID:       id,
			Name:           link.Text,
			URL:            link.URL,
			SourceCategory: ref.Name,
		})
		added++
	}
	f.result.Series = f.found
	f.result.Discovered = len(f.found)
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.CrawlSeries.Add(float64(added))
	}

	if page.NextPage != "" && !f.visitedCategories[page.NextPage] {
		f.queue.Push(CategoryRef{
			Name: strings.TrimSuffix(ref.Name, nextPageSuffix) + nextPageSuffix,
			URL:  page.NextPage,
		})
	}
	for _, sub := range page.SubCategories {
		if sub.URL == ref.URL || f.visitedCategories[sub.URL] {
			continue
		}
		f.queue.Push(CategoryRef{Name: sub.Text, URL: sub.URL})
	}

	logger.DebugContext(ctx, "category crawled",
		"new_series", added,
		"subcategories", len(page.SubCategories),
		"queued", f.queue.Len())
}

func (f *Frontier) checkpoint(kind string) (string, error) {
	p := filepath.Join(f.cfg.OutputDir, SnapshotName(f.cfg.Prefix, kind, f.cfg.Now().Unix()))
	if err := WriteSnapshot(p, f.found); err != nil {
		return "", err
	}
	f.result.Checkpoints++
	f.logger.Info("snapshot written", "kind", kind, "path", p, "series", f.result.Discovered)
	return p, nil
}

func (f *Frontier) interrupted(ctx context.Context, cause error) (Result, error) {
	p, err := f.checkpoint(KindProgress)
	if err != nil {
		f.logger.WarnContext(ctx, "writing checkpoint", "error", err)
	} else {
		f.result.SnapshotPath = p
	}
	return f.result, fmt.Errorf("crawl interrupted: %w", cause)
}
