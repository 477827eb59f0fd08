package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/serieswatch/internal/crawl"
	"github.com/roach88/serieswatch/internal/engine"
	"github.com/roach88/serieswatch/internal/metrics"
)

// CrawlOptions holds flags for the crawl command.
type CrawlOptions struct {
	*RootOptions
	Root            string
	Out             string
	Prefix          string
	CheckpointEvery int
}

// NewCrawlCommand creates the crawl command.
func NewCrawlCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CrawlOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Discover series by walking the category tree",
		Long: `Walk the portal's category tree breadth first and write every discovered
series to a CSV snapshot. Progress snapshots are written periodically and
when the crawl is interrupted.`,
		Example: `  # Crawl from the categories root into ./data
  serieswatch crawl --out data

  # Crawl a single branch
  serieswatch crawl --root https://fred.stlouisfed.org/categories/32991`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", "", "category URL to start from (default: the categories root)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "snapshot directory (overrides output_dir)")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", crawl.DefaultPrefix, "snapshot file name prefix")
	cmd.Flags().IntVar(&opts.CheckpointEvery, "checkpoint-every", 0, "categories between progress snapshots (overrides checkpoint_every)")

	return cmd
}

func runCrawl(cmd *cobra.Command, opts *CrawlOptions) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	factory, err := newFactory(opts.RootOptions)
	if err != nil {
		return err
	}

	root := opts.Root
	if root == "" {
		cu, ok := factory.(interface{ CategoriesURL() string })
		if !ok {
			return NewExitError(ExitCommandError, "--root is required for this fetch strategy")
		}
		root = cu.CategoriesURL()
	}
	out := opts.Out
	if out == "" {
		out = opts.Config.OutputDir
	}
	every := opts.CheckpointEvery
	if every <= 0 {
		every = opts.Config.CheckpointEvery
	}

	m := metrics.New()
	frontier := crawl.New(factory, crawl.Config{
		OutputDir:       out,
		Prefix:          opts.Prefix,
		CheckpointEvery: every,
		Pacer:           engine.NewPacer(opts.Config.MinDelayDuration(), opts.Config.MaxDelayDuration(), 0),
		Logger:          slog.Default(),
		Metrics:         m,
	})

	res, err := frontier.Run(ctx, crawl.CategoryRef{Name: "root", URL: root})
	writeMetrics(opts.RootOptions, m)
	if err != nil {
		if res.SnapshotPath != "" {
			slog.Warn("crawl stopped early", "snapshot", res.SnapshotPath, "discovered", res.Discovered)
		}
		return WrapExitError(ExitFailure, "crawl failed", err)
	}

	text := fmt.Sprintf("discovered %d series in %d categories (%d failed pages)\nsnapshot: %s",
		res.Discovered, res.Categories, res.FailedPages, res.SnapshotPath)
	return formatter(cmd, opts.RootOptions).Success(res, text)
}
