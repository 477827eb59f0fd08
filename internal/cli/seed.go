package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/serieswatch/internal/crawl"
	"github.com/roach88/serieswatch/internal/metrics"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Input string
	Limit int
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "seed",
		Short:   "Fetch every series listed in a discovery snapshot",
		Example: `  serieswatch seed --input fred_series_complete_1700000000.csv --limit 500`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Input, "input", "", "discovery snapshot CSV (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum series to fetch")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runSeed(cmd *cobra.Command, opts *SeedOptions) error {
	refs, err := crawl.ReadSnapshot(opts.Input)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	ids := make([]string, 0, len(refs))
	for _, r := range crawl.Dedup(refs) {
		ids = append(ids, r.SeriesID)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	m := metrics.New()
	eng, _, closeFn, err := newEngine(opts.RootOptions, m)
	if err != nil {
		return err
	}
	defer closeFn()

	sum, err := eng.Seed(ctx, ids, opts.Limit)
	writeMetrics(opts.RootOptions, m)
	if err != nil {
		return WrapExitError(ExitFailure, "seed failed", err)
	}
	return formatter(cmd, opts.RootOptions).Success(sum, fmt.Sprintf("seeded %d series: %s", sum.Total(), sum))
}
