package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/serieswatch/internal/store"
)

// NewDBCommand creates the db command group.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and maintain the series database",
	}
	cmd.AddCommand(newDBInitCommand(rootOpts))
	cmd.AddCommand(newDBStatsCommand(rootOpts))
	cmd.AddCommand(newDBCheckCommand(rootOpts))
	return cmd
}

func newDBInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and apply the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeFn, err := openStore(opts)
			if err != nil {
				return err
			}
			closeFn()
			data := map[string]string{"db_file": opts.Config.DBFile}
			return formatter(cmd, opts).Success(data, "initialized "+opts.Config.DBFile)
		},
	}
}

func newDBStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts and the frequency distribution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, err := openStore(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read stats", err)
			}
			return formatter(cmd, opts).Success(stats, formatStats(stats))
		},
	}
}

func newDBCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the schema and data model",
		Long:  "Check required tables and columns and count rows that break the data model. Exits 1 when issues are found.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, err := openStore(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := st.CheckIntegrity(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "integrity check failed", err)
			}
			if err := formatter(cmd, opts).Success(report, formatIntegrity(report)); err != nil {
				return err
			}
			if !report.OK {
				return NewExitError(ExitFailure, fmt.Sprintf("%d integrity issue(s)", len(report.Issues)))
			}
			return nil
		},
	}
}

func formatStats(s store.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "series:       %d\n", s.SeriesCount)
	fmt.Fprintf(&b, "observations: %d\n", s.ValueCount)
	fmt.Fprintf(&b, "log entries:  %d\n", s.LogCount)
	if s.LastSuccessfulUpdate != "" {
		fmt.Fprintf(&b, "last update:  %s\n", s.LastSuccessfulUpdate)
	}
	if s.EarliestObservation != "" {
		fmt.Fprintf(&b, "date range:   %s .. %s\n", s.EarliestObservation, s.LatestObservation)
	}
	if len(s.Frequencies) > 0 {
		b.WriteString("frequencies:\n")
		for _, f := range s.Frequencies {
			fmt.Fprintf(&b, "  %-14s %d\n", f.Frequency, f.Count)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatIntegrity(r store.IntegrityReport) string {
	if r.OK {
		return "ok"
	}
	var b strings.Builder
	for _, issue := range r.Issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	return strings.TrimRight(b.String(), "\n")
}
