// Package config manages tuplespaced daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete tuplespaced configuration.
type Config struct {
	Server ServerConfig `koanf:"server" yaml:"server"`
	Admin  AdminConfig  `koanf:"admin" yaml:"admin"`
	Log    LogConfig    `koanf:"log" yaml:"log"`
	Space  SpaceConfig  `koanf:"space" yaml:"space"`
	Daemon DaemonConfig `koanf:"daemon" yaml:"daemon"`
}

// ServerConfig holds the WebSocket listener configuration.
type ServerConfig struct {
	// Addr is the WebSocket listen address (e.g., ":7070").
	Addr string `koanf:"addr" yaml:"addr"`
	// Path is the URL path clients connect to for the tuple-space protocol.
	Path string `koanf:"path" yaml:"path"`
}

// AdminConfig holds the administrative HTTP surface configuration: metrics
// and health/readiness probes, served on a port separate from the protocol
// listener.
type AdminConfig struct {
	// Addr is the HTTP listen address for /metrics, /healthz, /readyz.
	Addr string `koanf:"addr" yaml:"addr"`
	// MetricsPath is the URL path for the Prometheus metrics endpoint.
	MetricsPath string `koanf:"metrics_path" yaml:"metrics_path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level" yaml:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format" yaml:"format"`
}

// SpaceConfig holds tuning parameters for the tuple-space core.
type SpaceConfig struct {
	// LivenessTick bounds how long a blocked In/Rd waiter can go without
	// re-checking whether its connection is still alive.
	LivenessTick time.Duration `koanf:"liveness_tick" yaml:"liveness_tick"`
}

// DaemonConfig holds process-lifecycle parameters.
type DaemonConfig struct {
	// ShutdownDrainTimeout bounds how long graceful shutdown waits for the
	// HTTP servers to finish in-flight HTTP requests. Upgraded WebSocket
	// sessions are hijacked connections: shutdown neither waits for them
	// nor closes them; they end when the process exits.
	ShutdownDrainTimeout time.Duration `koanf:"shutdown_drain_timeout" yaml:"shutdown_drain_timeout"`
	// WatchdogInterval caps how often sd_notify WATCHDOG=1 is sent when the
	// process is running under a systemd unit with WatchdogSec set: pings go
	// out at the shorter of this value and WatchdogSec/2. Zero leaves the
	// cadence at WatchdogSec/2. Without WatchdogSec no ping is sent.
	WatchdogInterval time.Duration `koanf:"watchdog_interval" yaml:"watchdog_interval"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":7070",
			Path: "/ts",
		},
		Admin: AdminConfig{
			Addr:        ":7071",
			MetricsPath: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Space: SpaceConfig{
			LivenessTick: 200 * time.Millisecond,
		},
		Daemon: DaemonConfig{
			ShutdownDrainTimeout: 10 * time.Second,
			WatchdogInterval:     5 * time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for tuplespaced configuration.
// Variables are named TUPLESPACED_<section>_<key>, e.g. TUPLESPACED_SERVER_ADDR.
const envPrefix = "TUPLESPACED_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (TUPLESPACED_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults. An empty path skips the
// file layer entirely, leaving defaults plus environment overrides.
//
// Environment variable mapping:
//
//	TUPLESPACED_SERVER_ADDR   -> server.addr
//	TUPLESPACED_ADMIN_ADDR    -> admin.addr
//	TUPLESPACED_LOG_LEVEL     -> log.level
//	TUPLESPACED_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms TUPLESPACED_SERVER_ADDR -> server.addr. Strips
// the TUPLESPACED_ prefix, lowercases, and replaces the first _ (the
// section separator) with ., so multi-word keys keep their underscores:
// TUPLESPACED_ADMIN_METRICS_PATH -> admin.metrics_path.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"server.addr":                   defaults.Server.Addr,
		"server.path":                   defaults.Server.Path,
		"admin.addr":                    defaults.Admin.Addr,
		"admin.metrics_path":            defaults.Admin.MetricsPath,
		"log.level":                     defaults.Log.Level,
		"log.format":                    defaults.Log.Format,
		"space.liveness_tick":           defaults.Space.LivenessTick.String(),
		"daemon.shutdown_drain_timeout": defaults.Daemon.ShutdownDrainTimeout.String(),
		"daemon.watchdog_interval":      defaults.Daemon.WatchdogInterval.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyServerAddr indicates the WebSocket listen address is empty.
	ErrEmptyServerAddr = errors.New("server.addr must not be empty")

	// ErrEmptyServerPath indicates the protocol URL path is empty.
	ErrEmptyServerPath = errors.New("server.path must not be empty")

	// ErrEmptyAdminAddr indicates the admin HTTP listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrSameAddr indicates the protocol and admin listeners collide.
	ErrSameAddr = errors.New("server.addr and admin.addr must differ")

	// ErrInvalidLivenessTick indicates the liveness tick interval is invalid.
	ErrInvalidLivenessTick = errors.New("space.liveness_tick must be > 0")

	// ErrInvalidShutdownDrainTimeout indicates the drain timeout is invalid.
	ErrInvalidShutdownDrainTimeout = errors.New("daemon.shutdown_drain_timeout must be > 0")
)

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return ErrEmptyServerAddr
	}

	if cfg.Server.Path == "" {
		return ErrEmptyServerPath
	}

	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if cfg.Server.Addr == cfg.Admin.Addr {
		return ErrSameAddr
	}

	if cfg.Space.LivenessTick <= 0 {
		return ErrInvalidLivenessTick
	}

	if cfg.Daemon.ShutdownDrainTimeout <= 0 {
		return ErrInvalidShutdownDrainTimeout
	}

	return nil
}

// -------------------------------------------------------------------------
// Diagnostics
// -------------------------------------------------------------------------

// DumpYAML renders the effective configuration as YAML, for the daemon's
// --dump-config flag. Unlike the koanf-driven Load path, this is a plain
// struct marshal: it reflects exactly what the process resolved after
// merging defaults, file, environment, and CLI overrides.
func (cfg *Config) DumpYAML() ([]byte, error) {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
