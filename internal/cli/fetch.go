package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/serieswatch/internal/engine"
	"github.com/roach88/serieswatch/internal/metrics"
)

// FetchResult is the fetch command's output.
type FetchResult struct {
	SeriesID     string         `json:"series_id"`
	State        engine.State   `json:"state"`
	Observations int            `json:"observations"`
	Filtered     bool           `json:"filtered,omitempty"`
	Error        string         `json:"error,omitempty"`
	Path         []engine.State `json:"path"`
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "fetch <series-id>",
		Short:   "Force-fetch a single series",
		Example: `  serieswatch fetch GDP`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, rootOpts, strings.TrimSpace(args[0]))
		},
	}
}

func runFetch(cmd *cobra.Command, opts *RootOptions, id string) error {
	if id == "" {
		return NewExitError(ExitCommandError, "series id is required")
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	m := metrics.New()
	eng, _, closeFn, err := newEngine(opts, m)
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := eng.FetchSeries(ctx, id)
	writeMetrics(opts, m)
	if err != nil {
		return WrapExitError(ExitFailure, "fetch failed", err)
	}

	res := FetchResult{
		SeriesID:     out.SeriesID,
		State:        out.State,
		Observations: out.Observations,
		Filtered:     out.Filtered,
		Path:         out.Path,
	}
	text := fmt.Sprintf("%s: %s (%d observations)", res.SeriesID, res.State, res.Observations)
	if out.Err != nil {
		res.Error = out.Err.Error()
		text = fmt.Sprintf("%s: %s: %v", res.SeriesID, res.State, out.Err)
	}
	return formatter(cmd, opts).Success(res, text)
}
