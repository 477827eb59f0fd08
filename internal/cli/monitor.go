package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/serieswatch/internal/metrics"
	"github.com/roach88/serieswatch/internal/monitor"
)

// MonitorOptions holds flags for the monitor command.
type MonitorOptions struct {
	*RootOptions
	Tasks       monitor.Tasks
	RetryDays   int
	MetricsFile string
}

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MonitorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Check health, retry failures, report and alert",
		Long: `Run maintenance tasks in order: integrity check, retry of recent
failures, a JSON report and the error-threshold alert. With no task flags
every task runs.`,
		Example: `  # Everything
  serieswatch monitor --full

  # Retry the last three days of failures, then alert if needed
  serieswatch monitor --retry --retry-days 3 --alerts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Tasks.Check, "check", false, "run the integrity check")
	cmd.Flags().BoolVar(&opts.Tasks.Retry, "retry", false, "retry recently failed series")
	cmd.Flags().BoolVar(&opts.Tasks.Report, "report", false, "write a JSON report")
	cmd.Flags().BoolVar(&opts.Tasks.Alerts, "alerts", false, "alert when errors reach the threshold")
	cmd.Flags().BoolVar(&opts.Tasks.Full, "full", false, "run every task")
	cmd.Flags().IntVar(&opts.RetryDays, "retry-days", 0, "retry window in days (overrides retry_days)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file (overrides metrics_file)")

	return cmd
}

func runMonitor(cmd *cobra.Command, opts *MonitorOptions) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	tasks := opts.Tasks
	if !tasks.Check && !tasks.Retry && !tasks.Report && !tasks.Alerts {
		tasks.Full = true
	}
	retryDays := opts.RetryDays
	if retryDays <= 0 {
		retryDays = opts.Config.RetryDays
	}
	metricsFile := opts.MetricsFile
	if metricsFile == "" {
		metricsFile = opts.Config.MetricsFile
	}

	m := metrics.New()
	monOpts := []monitor.Option{
		monitor.WithLogger(slog.Default()),
		monitor.WithMetrics(m),
	}
	closeFn := func() {}
	var st monitor.Store
	if tasks.Full || tasks.Retry {
		eng, engStore, engClose, err := newEngine(opts.RootOptions, m)
		if err != nil {
			return err
		}
		st, closeFn = engStore, engClose
		monOpts = append(monOpts, monitor.WithRetrier(eng.Retrier()))
	} else {
		plain, plainClose, err := openStore(opts.RootOptions)
		if err != nil {
			return err
		}
		st, closeFn = plain, plainClose
	}
	defer closeFn()

	mon := monitor.New(st, monitor.Config{
		ErrorThreshold: opts.Config.ErrorThreshold,
		RetryDays:      retryDays,
		RetryLimit:     opts.Config.RetryLimit,
		ReportDir:      opts.Config.ReportDir,
		MetricsFile:    metricsFile,
	}, monOpts...)

	res, err := mon.Run(ctx, tasks)
	if err != nil {
		return WrapExitError(ExitFailure, "monitor failed", err)
	}
	if ferr := formatter(cmd, opts.RootOptions).Success(res, formatMonitor(res)); ferr != nil {
		return ferr
	}
	if res.Integrity != nil && !res.Integrity.OK {
		return NewExitError(ExitFailure, fmt.Sprintf("%d integrity issue(s)", len(res.Integrity.Issues)))
	}
	return nil
}

func formatMonitor(r monitor.RunResult) string {
	var b strings.Builder
	if r.Integrity != nil {
		fmt.Fprintf(&b, "integrity: %s\n", formatIntegrity(*r.Integrity))
	}
	if r.Retry != nil {
		fmt.Fprintf(&b, "retry: %s\n", r.Retry)
	}
	if r.ReportPath != "" {
		fmt.Fprintf(&b, "report: %s\n", r.ReportPath)
	}
	fmt.Fprintf(&b, "alerted: %t", r.Alerted)
	return b.String()
}
