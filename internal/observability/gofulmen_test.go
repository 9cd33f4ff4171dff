package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventwindow/eventwindow/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("CLI logger", func(t *testing.T) {
		observability.InitCLILogger("eventwindow-test", true)
		require.NotNil(t, observability.CLILogger)
		observability.CLILogger.Debug("cli logger ready", zap.String("test", "value"))
	})

	t.Run("Structured server logger", func(t *testing.T) {
		observability.InitServerLogger("eventwindow-test", "debug", "structured")
		require.NotNil(t, observability.ServerLogger)
		observability.ServerLogger.Info("server logger ready",
			zap.Uint32("t", 123),
			zap.Uint8("count", 2))
	})

	t.Run("Simple server logger", func(t *testing.T) {
		observability.InitServerLogger("eventwindow-test", "warn", "simple")
		require.NotNil(t, observability.ServerLogger)
	})
}

func TestMetricsURL(t *testing.T) {
	assert.Contains(t, observability.MetricsURL(9191), "/metrics")
}

func TestEmbeddedCrucible(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
	assert.NotEmpty(t, crucible.GetVersionString())
}
