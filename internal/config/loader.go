// Package config provides layered configuration for eventwindow.
// Defaults are merged with an optional user config file, EVENTWINDOW_*
// environment variables and runtime overrides, then decoded into Config.
package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config and data directories.
	AppName = "eventwindow"

	// EnvPrefix is prepended to every environment override.
	EnvPrefix = "EVENTWINDOW_"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// Options control where Load reads from.
type Options struct {
	// ConfigFile overrides user config discovery.
	ConfigFile string

	// Overrides are merged last, in order.
	Overrides []map[string]any
}

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             "localhost",
			"port":             8080,
			"read_timeout":     "30s",
			"write_timeout":    "30s",
			"idle_timeout":     "120s",
			"shutdown_timeout": "10s",
		},
		"store": map[string]any{
			"driver":     "libsql",
			"path":       "",
			"url":        "",
			"auth_token": "",
		},
		"window": map[string]any{
			"limit":       10000,
			"tick":        "1ms",
			"autostart":   false,
			"record_runs": true,
		},
		"stream": map[string]any{
			"enabled": true,
			"buffer":  64,
		},
		"logging": map[string]any{
			"level":   "info",
			"profile": "structured",
		},
		"metrics": map[string]any{
			"enabled": true,
			"port":    9090,
		},
		"health": map[string]any{
			"enabled": true,
		},
	}
}

// Load loads configuration and stores it as the current config.
// It is safe to call multiple times (e.g., for config reload).
func Load(ctx context.Context, opts Options) (*Config, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	for key, value := range flatten("", Defaults()) {
		v.SetDefault(key, value)
	}

	path := strings.TrimSpace(opts.ConfigFile)
	if path == "" {
		path = discoverUserConfig()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(EnvSpecs(EnvPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if len(envOverrides) > 0 {
		if err := v.MergeConfigMap(envOverrides); err != nil {
			return nil, fmt.Errorf("failed to merge environment overrides: %w", err)
		}
	}
	for _, override := range opts.Overrides {
		if len(override) == 0 {
			continue
		}
		if err := v.MergeConfigMap(override); err != nil {
			return nil, fmt.Errorf("failed to merge runtime overrides: %w", err)
		}
	}

	cfg, err := Decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)
	return cfg, nil
}

// Decode converts a merged settings map into a validated Config.
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that the decoder cannot express.
func (c *Config) Validate() error {
	if c.Window.Limit < 0 || c.Window.Limit > math.MaxUint32 {
		return fmt.Errorf("window.limit must be between 0 and %d, got %d", uint32(math.MaxUint32), c.Window.Limit)
	}
	if c.Window.Tick <= 0 {
		return fmt.Errorf("window.tick must be positive, got %s", c.Window.Tick)
	}
	if c.Window.Tick < time.Microsecond {
		return fmt.Errorf("window.tick must be at least 1µs, got %s", c.Window.Tick)
	}
	if c.Stream.Buffer <= 0 {
		return fmt.Errorf("stream.buffer must be positive, got %d", c.Stream.Buffer)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "libsql", "sqlite":
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// EnvSpecs maps {PREFIX}{NAME} environment variables to config paths.
func EnvSpecs(prefix string) []EnvVarSpec {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Window config
		{Name: prefix + "WINDOW_LIMIT", Path: []string{"window", "limit"}, Type: EnvInt},
		{Name: prefix + "WINDOW_TICK", Path: []string{"window", "tick"}, Type: EnvString},
		{Name: prefix + "WINDOW_AUTOSTART", Path: []string{"window", "autostart"}, Type: EnvBool},
		{Name: prefix + "WINDOW_RECORD_RUNS", Path: []string{"window", "record_runs"}, Type: EnvBool},

		// Stream config
		{Name: prefix + "STREAM_ENABLED", Path: []string{"stream", "enabled"}, Type: EnvBool},
		{Name: prefix + "STREAM_BUFFER", Path: []string{"stream", "buffer"}, Type: EnvInt},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
	}
}

// discoverUserConfig returns the first existing user config file, if any.
func discoverUserConfig() string {
	for _, candidate := range userConfigCandidates() {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func userConfigCandidates() []string {
	var candidates []string
	for _, dir := range gfconfig.GetAppConfigPaths(AppName) {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if ext := filepath.Ext(dir); ext == ".yaml" || ext == ".yml" {
			candidates = append(candidates, dir)
			continue
		}
		candidates = append(candidates,
			filepath.Join(dir, "config.yaml"),
			filepath.Join(dir, "config.yml"))
	}
	return candidates
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}

// flatten turns nested maps into dotted viper keys.
func flatten(prefix string, in map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flatten(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = value
	}
	return out
}
