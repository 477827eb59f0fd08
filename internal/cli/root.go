package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/serieswatch/internal/config"
	"github.com/roach88/serieswatch/internal/oracle"
)

// RootOptions holds global flags and the loaded configuration.
type RootOptions struct {
	ConfigFile string
	DBFile     string
	Verbose    bool
	Format     string // "json" | "text"

	// Config is populated before any subcommand runs.
	Config config.Config

	// Environ overrides the process environment (for testing).
	Environ func() []string

	// EnvFile overrides the .env path (for testing).
	EnvFile string

	// SessionFactory overrides the portal factory (for testing).
	SessionFactory func(cfg config.Config, logger *slog.Logger) (oracle.Factory, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the serieswatch CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serieswatch",
		Short: "Keep a local copy of FRED economic series up to date",
		Long: `serieswatch discovers economic time series on the FRED portal, stores
their metadata and observations in SQLite and refreshes them on a schedule
driven by each series' reporting frequency.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(cmd, opts.Verbose)
			return loadConfig(opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a YAML or JSON config file")
	cmd.PersistentFlags().StringVar(&opts.DBFile, "db", "", "path to the SQLite database (overrides db_file)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDBCommand(opts))
	cmd.AddCommand(NewCrawlCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewMonitorCommand(opts))

	return cmd
}

func loadConfig(opts *RootOptions) error {
	cfg, err := config.Load(config.LoadOptions{
		File:    opts.ConfigFile,
		EnvFile: opts.EnvFile,
		Environ: opts.Environ,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DBFile != "" {
		cfg.DBFile = opts.DBFile
	}
	opts.Config = cfg
	return nil
}

// Execute runs the CLI and returns the process exit code. Errors are
// reported on stderr in the selected output format.
func Execute() int {
	opts := &RootOptions{Format: "text"}
	cmd := newRootCommand(opts)
	err := cmd.Execute()
	if err != nil {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.ErrOrStderr()}
		if ferr := f.Error(err); ferr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	return GetExitCode(err)
}
