package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/serieswatch/internal/config"
	"github.com/roach88/serieswatch/internal/engine"
	"github.com/roach88/serieswatch/internal/metrics"
	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/oracle/portal"
	"github.com/roach88/serieswatch/internal/store"
)

// setupLogging installs a text handler on stderr, at debug level when
// verbose.
func setupLogging(cmd *cobra.Command, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// openStore opens the configured database, creating it if needed.
func openStore(opts *RootOptions) (*store.Store, func(), error) {
	path := opts.Config.DBFile
	slog.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	closeFn := func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}
	return st, closeFn, nil
}

// newFactory builds the portal factory for the configured strategy.
func newFactory(opts *RootOptions) (oracle.Factory, error) {
	cfg := opts.Config
	logger := slog.Default()
	if opts.SessionFactory != nil {
		f, err := opts.SessionFactory(cfg, logger)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create portal factory", err)
		}
		return f, nil
	}
	f, err := portal.NewFactory(portal.Config{
		Strategy:    portal.Strategy(cfg.FetchStrategy),
		BaseURL:     cfg.BaseURL,
		Proxy:       cfg.UseProxy,
		Headless:    cfg.Headless,
		PageTimeout: cfg.PageTimeoutDuration(),
		Logger:      logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create portal factory", err)
	}
	return f, nil
}

// engineConfig maps settings onto the engine.
func engineConfig(cfg config.Config) engine.Config {
	return engine.Config{
		Workers:           cfg.MaxWorkers,
		Limit:             cfg.LimitPerRun,
		MinDelay:          cfg.MinDelayDuration(),
		MaxDelay:          cfg.MaxDelayDuration(),
		Timeout:           cfg.TimeoutDuration(),
		RetryBackoff:      cfg.RetryBackoffDuration(),
		RetryLimit:        cfg.RetryLimit,
		RetryDelay:        cfg.RetryDelayDuration(),
		SessionResetAfter: cfg.SessionResetAfter,
		PeekLastUpdated:   cfg.PeekLastUpdated,
	}
}

// newEngine opens the store and factory and builds an engine over them.
func newEngine(opts *RootOptions, m *metrics.Metrics) (*engine.Engine, *store.Store, func(), error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	st, closeFn, err := openStore(opts)
	if err != nil {
		return nil, nil, nil, err
	}
	factory, err := newFactory(opts)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	eng := engine.New(st, factory, engineConfig(opts.Config),
		engine.WithLogger(slog.Default()),
		engine.WithMetrics(m),
	)
	return eng, st, closeFn, nil
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// writeMetrics exports m when metrics_file is configured.
func writeMetrics(opts *RootOptions, m *metrics.Metrics) {
	if opts.Config.MetricsFile == "" {
		return
	}
	if err := m.WriteTextfile(opts.Config.MetricsFile); err != nil {
		slog.Warn("writing metrics file", "path", opts.Config.MetricsFile, "error", err)
	}
}
