package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eventwindow/eventwindow/internal/config"
	"github.com/eventwindow/eventwindow/internal/core/engine"
	"github.com/eventwindow/eventwindow/internal/core/store"
	"github.com/eventwindow/eventwindow/internal/core/window"
	errwrap "github.com/eventwindow/eventwindow/internal/errors"
	"github.com/eventwindow/eventwindow/internal/observability"
	"github.com/eventwindow/eventwindow/internal/server"
	"github.com/eventwindow/eventwindow/internal/server/handlers"
)

var (
	serverPort  int
	serverHost  string
	windowLimit uint32
	autostart   bool
	noStream    bool
	noHistory   bool
)

// signalHealthChecker implements HealthChecker for signal system
type signalHealthChecker struct{}

func (s signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil // Signal handlers are registered and ready
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the event window over HTTP",
	Long: `Serve a single event window over HTTP, with run history and a websocket
snapshot stream.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (log level and window limit)

The server will cleanly shut down the HTTP server, close the history store
and flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := serveOverrides(cmd)
		cfg, err := loadConfig(cmd, overrides)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "failed to load configuration")
		}

		observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Profile)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		var db *store.Store
		if cfg.Window.RecordRuns {
			db, err = openStore(cmd.Context(), cfg)
			if err != nil {
				logger.Error("Failed to open run history store", zap.Error(err))
				return errwrap.WrapDatabaseError(cmd.Context(), err, "run history store unavailable")
			}
		}

		trackerOpts := engine.Options{
			Limit:            window.Duration(cfg.Window.Limit),
			Logger:           logger,
			Tick:             cfg.Window.Tick,
			SubscriberBuffer: cfg.Stream.Buffer,
		}
		serverOpts := server.Options{Stream: cfg.Stream.Enabled}
		if db != nil {
			trackerOpts.Store = db
			serverOpts.Runs = db
		}
		tracker := engine.New(trackerOpts)
		serverOpts.Tracker = tracker

		if cfg.Window.Autostart {
			tracker.Start(tracker.Now())
		}

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Uint32("window_limit", uint32(tracker.Limit())),
			zap.Duration("tick", cfg.Window.Tick),
			zap.Bool("record_runs", db != nil),
			zap.Bool("stream", cfg.Stream.Enabled),
			zap.Int("metrics_port", observability.GetMetricsPort()))

		handlers.InitHealthManager(versionInfo.Version)
		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		handlers.SetAppName(config.AppName)
		if cfg.Health.Enabled {
			hm := handlers.GetHealthManager()
			hm.RegisterChecker("signal_handlers", signalHealthChecker{})
			hm.AttachTracker(tracker)
			if cfg.Metrics.Enabled {
				hm.RegisterChecker("telemetry", telemetryHealthChecker{})
			}
			if db != nil {
				hm.RegisterChecker("store", db)
			}
		}

		srv := server.New(cfg.Server, serverOpts)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		// Handler 2: Close the history store
		signals.OnShutdown(func(ctx context.Context) error {
			if db == nil {
				return nil
			}
			if err := db.Close(); err != nil {
				return errwrap.WrapDatabaseError(ctx, err, "failed to close run history store")
			}
			return nil
		})

		// Handler 3: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			return reloadConfig(cmd, overrides, tracker)
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// reloadConfig re-reads configuration on SIGHUP. Only the log level and the
// window limit are applied live; the limit is refused while a window runs.
func reloadConfig(cmd *cobra.Command, overrides map[string]any, tracker *engine.Tracker) error {
	logger := observability.ServerLogger
	logger.Info("Received SIGHUP: attempting config reload")

	cfg, err := loadConfig(cmd, overrides)
	if err != nil {
		logger.Error("Failed to reload configuration", zap.Error(err))
		return errwrap.WrapConfigInvalid(cmd.Context(), err, "config reload failed")
	}

	observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Profile)
	logger = observability.ServerLogger

	limit := window.Duration(cfg.Window.Limit)
	if limit != tracker.Limit() {
		if res := tracker.SetLimit(limit); !res.Accepted() {
			logger.Warn("Window limit not changed while the window runs",
				zap.Uint32("limit", uint32(limit)),
				zap.String("result", res.String()))
		}
	}

	logger.Info("Configuration reloaded successfully",
		zap.String("log_level", cfg.Logging.Level),
		zap.Uint32("window_limit", uint32(tracker.Limit())))
	return nil
}

// serveOverrides maps explicitly set flags onto config keys.
func serveOverrides(cmd *cobra.Command) map[string]any {
	overrides := make(map[string]any)
	flags := cmd.Flags()
	if flags.Changed("host") {
		setOverride(overrides, "server.host", serverHost)
	}
	if flags.Changed("port") {
		setOverride(overrides, "server.port", serverPort)
	}
	if flags.Changed("limit") {
		setOverride(overrides, "window.limit", int64(windowLimit))
	}
	if flags.Changed("autostart") {
		setOverride(overrides, "window.autostart", autostart)
	}
	if noStream {
		setOverride(overrides, "stream.enabled", false)
	}
	if noHistory {
		setOverride(overrides, "window.record_runs", false)
	}
	if verbose {
		setOverride(overrides, "logging.level", "debug")
	}
	return overrides
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
	serveCmd.Flags().Uint32Var(&windowLimit, "limit", 10000, "window limit in ticks")
	serveCmd.Flags().BoolVar(&autostart, "autostart", false, "start the window when the server starts")
	serveCmd.Flags().BoolVar(&noStream, "no-stream", false, "disable the websocket snapshot stream")
	serveCmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record completed windows")
}
