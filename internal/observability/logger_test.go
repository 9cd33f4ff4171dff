package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
)

func TestSeverity(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		" Debug ": "DEBUG",
		"warning": "WARN",
		"warn":    "WARN",
		"ERROR":   "ERROR",
		"info":    "INFO",
		"":        "INFO",
		"loud":    "INFO",
	}
	for in, want := range cases {
		assert.Equal(t, want, severity(in), in)
	}
}

func TestStructuredConfig(t *testing.T) {
	cfg := structuredConfig("eventwindow", "WARN")

	assert.Equal(t, logging.ProfileStructured, cfg.Profile)
	assert.Equal(t, "WARN", cfg.DefaultLevel)
	assert.Equal(t, "eventwindow", cfg.Service)
	assert.Equal(t, "window-server", cfg.StaticFields["component"])
	if assert.Len(t, cfg.Sinks, 1) {
		assert.Equal(t, "stderr", cfg.Sinks[0].Console.Stream)
	}
}
