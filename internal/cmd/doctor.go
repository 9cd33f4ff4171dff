package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eventwindow/eventwindow/internal/config"
	"github.com/eventwindow/eventwindow/internal/core/store"
	"github.com/eventwindow/eventwindow/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the system and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		log := observability.CLILogger
		log.Info("=== " + config.AppName + " doctor ===")
		log.Info("")

		allChecks := true
		totalChecks := 6

		// Check 1: Go version
		goVersion := runtime.Version()
		if goVersion >= "go1.23" {
			log.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s", totalChecks, goVersion), zap.String("go_version", goVersion))
		} else {
			log.Warn(fmt.Sprintf("[1/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", totalChecks, goVersion), zap.String("go_version", goVersion))
			allChecks = false
		}

		// Check 2: Crucible and Gofulmen
		version := crucible.GetVersion()
		if version.Crucible != "" && version.Gofulmen != "" {
			log.Info(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ✅ v%s / v%s", totalChecks, version.Gofulmen, version.Crucible),
				zap.String("gofulmen_version", version.Gofulmen),
				zap.String("crucible_version", version.Crucible))
		} else {
			log.Error(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ❌ version metadata unavailable", totalChecks))
			allChecks = false
		}

		// Check 3: Config directory
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			log.Error(fmt.Sprintf("[3/%d] Checking config directory... ❌ Cannot resolve config directory", totalChecks))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[3/%d] Checking config directory... ✅ %s", totalChecks, filepath.Dir(configPath)),
				zap.String("config_dir", filepath.Dir(configPath)))
		}

		// Check 4: Configuration
		cfg, cfgErr := loadConfig(cmd, nil)
		if cfgErr != nil {
			log.Error(fmt.Sprintf("[4/%d] Checking configuration... ❌ %v", totalChecks, cfgErr), zap.Error(cfgErr))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[4/%d] Checking configuration... ✅ window limit %d, tick %s", totalChecks, cfg.Window.Limit, cfg.Window.Tick),
				zap.Int64("window_limit", cfg.Window.Limit),
				zap.Duration("tick", cfg.Window.Tick))
		}

		// Check 5: Run history store
		if cfgErr != nil {
			log.Warn(fmt.Sprintf("[5/%d] Checking run history... ⚠️  skipped (config not loaded)", totalChecks))
		} else if !cfg.Window.RecordRuns {
			log.Info(fmt.Sprintf("[5/%d] Checking run history... ✅ disabled", totalChecks))
		} else {
			db, err := openStore(ctx, cfg)
			if err != nil {
				log.Warn(fmt.Sprintf("[5/%d] Checking run history... ⚠️  cannot open store", totalChecks), zap.Error(err))
				allChecks = false
			} else {
				defer db.Close() //nolint:errcheck
				count, err := db.CountRuns(ctx, store.RunQuery{All: true})
				if err != nil {
					log.Warn(fmt.Sprintf("[5/%d] Checking run history... ⚠️  cannot read runs", totalChecks), zap.Error(err))
					allChecks = false
				} else {
					log.Info(fmt.Sprintf("[5/%d] Checking run history... ✅ %d run(s) in %s", totalChecks, count, describeStore(cfg.Store)),
						zap.Int("runs", count))
				}
			}
		}

		// Check 6: Environment
		log.Info(fmt.Sprintf("[6/%d] Checking environment... ✅ %s/%s", totalChecks, runtime.GOOS, runtime.GOARCH),
			zap.String("os", runtime.GOOS),
			zap.String("arch", runtime.GOARCH))

		log.Info("")
		if allChecks {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", config.AppName))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
	},
}

var doctorInitForce bool

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the built-in defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if fileExists(configPath) && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		body, err := buildInitConfig()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(configPath, body, 0644); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		configPath := config.DefaultConfigPath()
		dataDir := config.DefaultDataDir()

		log.Info("Configuration:")
		log.Info(fmt.Sprintf("  Config file:    %s (%s)", configPath, existenceStatus(fileExists(configPath))))
		log.Info(fmt.Sprintf("  Data directory: %s (%s)", dataDir, existenceStatus(fileExists(dataDir))))

		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return nil
		}
		log.Info(fmt.Sprintf("  Database:       %s", describeStore(cfg.Store)))
		log.Info(fmt.Sprintf("  Server:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info(fmt.Sprintf("  Window:         limit %d, tick %s, autostart %t", cfg.Window.Limit, cfg.Window.Tick, cfg.Window.Autostart))
		log.Info(fmt.Sprintf("  Stream:         enabled %t, buffer %d", cfg.Stream.Enabled, cfg.Stream.Buffer))
		log.Info(fmt.Sprintf("  Metrics:        enabled %t, port %d", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info(fmt.Sprintf("  Logging:        %s (%s)", cfg.Logging.Level, cfg.Logging.Profile))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorConfigCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
}

func buildInitConfig() ([]byte, error) {
	defaults := config.Defaults()
	if storeDefaults, ok := defaults["store"].(map[string]any); ok {
		storeDefaults["path"] = config.DefaultStorePath()
	}

	body, err := yaml.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}
	header := fmt.Sprintf("# %s config - created by '%s doctor init'\n", config.AppName, config.AppName)
	return append([]byte(header), body...), nil
}

func describeStore(cfg config.StoreConfig) string {
	if cfg.URL != "" {
		return cfg.URL + " (remote)"
	}
	path := cfg.Path
	if path == "" {
		path = config.DefaultStorePath()
	}
	abs, _ := filepath.Abs(path)
	info, err := os.Stat(abs)
	switch {
	case err == nil:
		return fmt.Sprintf("%s (%s)", abs, formatFileSize(info.Size()))
	case os.IsNotExist(err):
		return abs + " (not created yet)"
	default:
		return fmt.Sprintf("%s (error: %v)", abs, err)
	}
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}
