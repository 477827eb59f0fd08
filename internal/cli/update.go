package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/serieswatch/internal/engine"
	"github.com/roach88/serieswatch/internal/metrics"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Workers   int
	Limit     int
	MinDays   int
	RetryDays int
	Delay     float64
	Loop      bool
	Interval  time.Duration
}

// UpdateResult is the update command's output.
type UpdateResult struct {
	Passes []engine.PassResult `json:"passes"`
	Total  engine.Summary      `json:"total"`
	Retry  *engine.Summary     `json:"retry,omitempty"`
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh series that are due for a check",
		Long: `Run an update pass over every admitted series whose last check is older
than its frequency interval. Series are split across workers, each with its
own portal session.

With --loop, passes repeat every --interval until the configured timeout
is spent.`,
		Example: `  # One pass with the configured workers
  serieswatch update

  # Only series unchecked for a week, at most 100 of them
  serieswatch update --min-days 7 --limit 100

  # Keep going for the timeout budget
  serieswatch update --loop --interval 10m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "number of workers (overrides max_workers)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum series per pass (overrides limit_per_run)")
	cmd.Flags().IntVar(&opts.MinDays, "min-days", 0, "only series unchecked for at least this many days")
	cmd.Flags().IntVar(&opts.RetryDays, "retry-days", 0, "retry failures from the last N days after the pass")
	cmd.Flags().Float64Var(&opts.Delay, "delay", 0, "base delay in seconds between series (overrides min/max delay)")
	cmd.Flags().BoolVar(&opts.Loop, "loop", false, "repeat passes until the timeout is spent")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 10*time.Minute, "pause between passes with --loop")

	return cmd
}

func runUpdate(cmd *cobra.Command, opts *UpdateOptions) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	m := metrics.New()
	eng, _, closeFn, err := newEngine(opts.RootOptions, m)
	if err != nil {
		return err
	}
	defer closeFn()

	passOpts := engine.PassOptions{
		Limit:   opts.Limit,
		Workers: opts.Workers,
		Delay:   time.Duration(opts.Delay * float64(time.Second)),
	}
	if cmd.Flags().Changed("min-days") {
		days := opts.MinDays
		passOpts.MinDays = &days
	}

	var passes []engine.PassResult
	if opts.Loop {
		passes, err = eng.RunLoop(ctx, passOpts, opts.Interval)
	} else {
		var res engine.PassResult
		res, err = eng.RunPass(ctx, passOpts)
		if err == nil {
			passes = []engine.PassResult{res}
		}
	}
	if err != nil {
		return WrapExitError(ExitFailure, "update failed", err)
	}

	result := UpdateResult{Passes: passes}
	for _, p := range passes {
		result.Total.Merge(p.Summary)
	}

	retryDays := opts.RetryDays
	if retryDays <= 0 && opts.Config.RetryFailed {
		retryDays = opts.Config.RetryDays
	}
	if retryDays > 0 && ctx.Err() == nil {
		sum, rerr := eng.Retrier().RetryFailed(ctx, retryDays, 0)
		if rerr != nil {
			slog.Error("retrying failed series", "error", rerr)
		} else {
			result.Retry = &sum
		}
	}
	writeMetrics(opts.RootOptions, m)

	return formatter(cmd, opts.RootOptions).Success(result, formatUpdate(result))
}

func formatUpdate(r UpdateResult) string {
	var b strings.Builder
	for i, p := range r.Passes {
		fmt.Fprintf(&b, "pass %d (%s): %d candidates, %s in %s\n",
			i+1, p.RunID, p.Candidates, p.Summary, p.Duration.Round(time.Millisecond))
	}
	if len(r.Passes) > 1 {
		fmt.Fprintf(&b, "total: %s\n", r.Total)
	}
	if r.Retry != nil {
		fmt.Fprintf(&b, "retry: %s\n", r.Retry)
	}
	return strings.TrimRight(b.String(), "\n")
}
