package config

import (
	"time"
)

// Config represents the complete application configuration.
// Layer 1: built-in defaults (Defaults)
// Layer 2: user config file (~/.config/eventwindow/config.yaml or --config)
// Layer 3: EVENTWINDOW_* environment variables and runtime overrides
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Window  WindowConfig  `mapstructure:"window"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// WindowConfig configures the served event window.
type WindowConfig struct {
	// Limit is the maximum window span in ticks (unsigned 32-bit).
	Limit int64 `mapstructure:"limit"`

	// Tick is the wall-clock length of one timestamp unit.
	Tick time.Duration `mapstructure:"tick"`

	// Autostart opens the window when the server starts.
	Autostart bool `mapstructure:"autostart"`

	// RecordRuns persists every completed window to the store.
	RecordRuns bool `mapstructure:"record_runs"`
}

// StreamConfig configures the websocket snapshot stream.
type StreamConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Buffer is the per-client snapshot queue; full queues drop snapshots.
	Buffer int `mapstructure:"buffer"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the server log format
	// Valid values: simple (console), structured (JSON)
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated Prometheus exporter port; /metrics on the main
	// server proxies to it.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}
