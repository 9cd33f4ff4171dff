package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger writes human-readable command output.
	CLILogger *logging.Logger

	// ServerLogger is the serve command's logger, JSON on stderr unless the
	// "simple" profile is configured.
	ServerLogger *logging.Logger
)

// InitCLILogger initializes CLILogger. verbose enables debug output.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatalInit("CLI", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger (re)initializes ServerLogger. It is called again on
// SIGHUP so a changed level takes effect without a restart.
func InitServerLogger(serviceName, logLevel, profile string) {
	level := severity(logLevel)

	var (
		logger *logging.Logger
		err    error
	)
	if strings.EqualFold(strings.TrimSpace(profile), "simple") {
		logger, err = logging.NewCLI(serviceName)
		if err == nil && (level == "DEBUG" || level == "TRACE") {
			logger.SetLevel(logging.DEBUG)
		}
	} else {
		logger, err = logging.New(structuredConfig(serviceName, level))
	}
	if err != nil {
		fatalInit("server", err)
	}
	ServerLogger = logger
}

func structuredConfig(serviceName, level string) *logging.LoggerConfig {
	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: level,
		Service:      serviceName,
		Environment:  "production",
		StaticFields: map[string]any{"component": "window-server"},
		Middleware: []logging.MiddlewareConfig{{
			Name:    "correlation",
			Enabled: true,
			Order:   100,
			Config:  map[string]any{},
		}},
		Sinks: []logging.SinkConfig{{
			Type:    "console",
			Format:  "json",
			Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
		}},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// severity maps a config level onto the logging package's names. Unknown
// levels log at INFO.
func severity(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	}
	return "INFO"
}

// fatalInit exits with ExitConfigInvalid. No logger exists yet, so the
// report goes straight to stderr.
func fatalInit(which string, err error) {
	code := foundry.ExitConfigInvalid
	fmt.Fprintf(os.Stderr, "FATAL: failed to initialize %s logger: %v\n", which, err)
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(code))
}
