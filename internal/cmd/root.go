package cmd

import (
	"strings"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eventwindow/eventwindow/internal/config"
	"github.com/eventwindow/eventwindow/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Sliding-window event counter",
	Long: config.AppName + ` counts events inside a bounded, sliding time window.

Serve the window over HTTP, replay scripted scenarios against it, and
inspect the history of completed windows.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early so CLI commands never emit metrics.
	// serve initializes the Prometheus-backed system itself.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/"+config.AppName+"/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

func initLogging() {
	observability.InitCLILogger(config.AppName, verbose)
	if cfgFile != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", cfgFile))
	}
}

// loadConfig loads the layered configuration with overrides applied last.
func loadConfig(cmd *cobra.Command, overrides map[string]any) (*config.Config, error) {
	opts := config.Options{ConfigFile: cfgFile}
	if len(overrides) > 0 {
		opts.Overrides = []map[string]any{overrides}
	}
	return config.Load(cmd.Context(), opts)
}

// setOverride sets a dotted key in a nested override map.
func setOverride(overrides map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	node := overrides
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
}
