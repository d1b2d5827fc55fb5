// Command tuplespaced is the tuple-space daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/tuplespaced/internal/config"
	"github.com/dantte-lp/tuplespaced/internal/metrics"
	"github.com/dantte-lp/tuplespaced/internal/server"
	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
	appversion "github.com/dantte-lp/tuplespaced/internal/version"
)

// flightRecorderMinAge is the minimum window age for the flight recorder.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	logLevelOverride := flag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	dumpConfig := flag.Bool("dump-config", false, "print the effective configuration as YAML and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath, flag.Args())
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}
	if *logLevelOverride != "" {
		cfg.Log.Level = *logLevelOverride
	}

	if *dumpConfig {
		data, err := cfg.DumpYAML()
		if err != nil {
			fmt.Fprintln(os.Stderr, "dump config:", err)
			return 1
		}
		os.Stdout.Write(data)
		return 0
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("tuplespaced starting",
		slog.String("version", appversion.Version),
		slog.String("server_addr", cfg.Server.Addr),
		slog.String("admin_addr", cfg.Admin.Addr),
	)

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	space := tuplespace.NewSpace(tuplespace.WithLivenessTick(cfg.Space.LivenessTick))
	defer space.Close()

	if err := runServers(cfg, space, collector, reg, logger, fr); err != nil {
		logger.Error("tuplespaced exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("tuplespaced stopped")
	return 0
}

// loadConfig loads the configuration from path (or defaults, if empty), then
// applies the two positional CLI arguments (bind address, port) over the
// resulting server address, since those take precedence over both the
// config file and environment variables.
func loadConfig(path string, positional []string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if len(positional) > 0 {
		if len(positional) != 2 {
			return nil, fmt.Errorf("expected exactly 2 positional arguments (bind address, port), got %d", len(positional))
		}
		cfg.Server.Addr = net.JoinHostPort(positional[0], positional[1])
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// runServers wires the WebSocket and admin HTTP servers together and runs
// them under an errgroup until a shutdown signal arrives.
func runServers(
	cfg *config.Config,
	space *tuplespace.Space,
	collector *metrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
) error {
	srv := server.New(space, collector, logger, cfg.Server.Path)

	ready := false
	adminHandler := server.NewAdminHandler(reg, srv.Registry(), server.AdminConfig{
		MetricsPath: cfg.Admin.MetricsPath,
	}, func() bool { return ready })

	wsServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	adminServer := &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           adminHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	startHTTPServers(gCtx, g, cfg, wsServer, adminServer, logger)

	g.Go(func() error {
		return runWatchdog(gCtx, cfg.Daemon.WatchdogInterval, logger)
	})

	ready = true
	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, cfg.Daemon.ShutdownDrainTimeout, logger, fr, wsServer, adminServer)
	})

	// Periodically reflect the current tuple count into the metrics gauge;
	// cheap enough to poll rather than update on every Out/Take.
	g.Go(func() error {
		return pollTupleCount(gCtx, space, collector)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	wsServer *http.Server,
	adminServer *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("websocket server listening",
			slog.String("addr", cfg.Server.Addr),
			slog.String("path", cfg.Server.Path),
		)
		return listenAndServe(ctx, &lc, wsServer, cfg.Server.Addr)
	})

	g.Go(func() error {
		logger.Info("admin server listening",
			slog.String("addr", cfg.Admin.Addr),
			slog.String("metrics_path", cfg.Admin.MetricsPath),
		)
		return listenAndServe(ctx, &lc, adminServer, cfg.Admin.Addr)
	})
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// pollTupleCount refreshes the tuples-stored gauge once a second.
// Reading Space.Snapshot() takes the same lock every Out/Take/Peek call
// does, so polling rather than updating on every mutation keeps the hot
// path lock-section small.
func pollTupleCount(ctx context.Context, space *tuplespace.Space, collector *metrics.Collector) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			collector.SetTuplesStored(space.Snapshot().Count)
		}
	}
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd. configured is
// the daemon's own configured interval; the actual keepalive cadence is
// whichever is shorter between that and systemd's own WatchdogSec/2.
func runWatchdog(ctx context.Context, configured time.Duration, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	if configured > 0 && configured < tickInterval {
		tickInterval = configured
	}

	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown signals systemd, stops the flight recorder, and drains
// the HTTP servers within drainTimeout. The parent context is already
// cancelled when this is called; a fresh timeout context is derived for the
// drain itself.
func gracefulShutdown(
	ctx context.Context,
	drainTimeout time.Duration,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder
// -------------------------------------------------------------------------

// startFlightRecorder initializes and starts a rolling execution trace
// window for post-mortem debugging of session/dispatch failures.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar so
// the log level could be adjusted dynamically if a reload mechanism is
// added later.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
