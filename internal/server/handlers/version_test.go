package handlers

import (
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventwindow/eventwindow/internal/core/window"
)

func TestVersionHandlerReportsBuildAndWindow(t *testing.T) {
	SetVersionInfo("1.2.3", "abcd123", "2026-10-18T12:00:00Z")
	SetAppName("eventwindow")
	t.Cleanup(func() {
		SetVersionInfo("dev", "unknown", "unknown")
		SetAppName("")
	})

	rec := call(t, VersionHandler, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[VersionResponse](t, rec)
	assert.Equal(t, "eventwindow", resp.App.Name)
	assert.Equal(t, "1.2.3", resp.App.Version)
	assert.Equal(t, "abcd123", resp.App.Commit)
	assert.NotEmpty(t, resp.App.GoVersion)
	assert.NotEmpty(t, resp.Dependencies["gofulmen"])
	assert.NotEmpty(t, resp.Dependencies["crucible"])
	assert.Equal(t, window.Capacity, resp.Window.Capacity)
	assert.Equal(t, uint32(4294967295), resp.Window.MaxLimit)
}

func TestVersionHandlerFallsBackToExecutableName(t *testing.T) {
	SetAppName("")
	rec := call(t, VersionHandler, http.MethodGet, "/version", "")
	assert.Equal(t, executableName(), decode[VersionResponse](t, rec).App.Name)
}

func TestCurrentProcessReportsOwnPID(t *testing.T) {
	info := currentProcess()
	if info == nil {
		t.Skip("process stats unavailable on this platform")
	}
	assert.Equal(t, int32(os.Getpid()), info.PID)
}
