package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventwindow/eventwindow/internal/core/engine"
	"github.com/eventwindow/eventwindow/internal/core/window"
	apperrors "github.com/eventwindow/eventwindow/internal/errors"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", stubChecker{})
	manager.RegisterChecker("signal_handlers", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, map[string]string{"store": "healthy", "signal_handlers": "healthy"}, resp.Checks)
	assert.Nil(t, resp.Window)
}

func TestHealthHandlerIncludesWindowSummary(t *testing.T) {
	fixed := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	tracker := engine.New(engine.Options{Limit: 1000, Clock: func() time.Time { return fixed }})
	require.Equal(t, window.Okay, tracker.Start(tracker.Now()))
	tracker.Add(tracker.Now())

	manager := NewHealthManager("dev")
	manager.AttachTracker(tracker)

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	require.NotNil(t, resp.Window)
	assert.True(t, resp.Window.Running)
	assert.Equal(t, window.Duration(1000), resp.Window.Limit)
	assert.Equal(t, window.Count(1), resp.Window.Count)
}

func TestHealthHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", stubChecker{err: errors.New("database is locked")})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[apperrors.HTTPErrorResponse](t, rec)
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)

	checks, ok := resp.Error.Details["checks"].(map[string]interface{})
	require.True(t, ok, "checks in error details")
	assert.Equal(t, "unhealthy", checks["store"])
}

func TestRunHealthChecksMarksSlowChecksAsTimeout(t *testing.T) {
	manager := NewHealthManager("dev")
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	manager.RegisterChecker("fast", stubChecker{})
	manager.RegisterChecker("slow", CheckerFunc(func(ctx context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	checks := manager.runHealthChecks(ctx)

	assert.Equal(t, "healthy", checks["fast"])
	assert.Equal(t, "timeout", checks["slow"])
	assert.Equal(t, "degraded", manager.determineOverallStatus(checks))
}

func TestDetermineOverallStatus(t *testing.T) {
	manager := NewHealthManager("dev")

	assert.Equal(t, "healthy", manager.determineOverallStatus(nil))
	assert.Equal(t, "degraded", manager.determineOverallStatus(map[string]string{"store": "timeout"}))
	assert.Equal(t, "unhealthy", manager.determineOverallStatus(map[string]string{
		"store":     "timeout",
		"telemetry": "unhealthy",
	}))
}

func TestProbeHandlers(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", CheckerFunc(func(ctx context.Context) error { return nil }))

	probes := map[string]http.HandlerFunc{
		"live":    manager.LivenessHandler,
		"ready":   manager.ReadinessHandler,
		"startup": manager.StartupHandler,
	}
	for name, handler := range probes {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/health/"+name, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "healthy", decode[ProbeResponse](t, rec).Status)
		})
	}
}

func TestProbeReportsFailingProbe(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", CheckerFunc(func(ctx context.Context) error { return errors.New("locked") }))

	rec := httptest.NewRecorder()
	manager.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ready", decode[apperrors.HTTPErrorResponse](t, rec).Error.Details["probe"])
}

func TestGlobalHealthHandlers(t *testing.T) {
	original := globalHealthManager
	t.Cleanup(func() { globalHealthManager = original })

	globalHealthManager = nil
	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "aggregate", decode[apperrors.HTTPErrorResponse](t, rec).Error.Details["probe"])

	InitHealthManager("dev")
	rec = httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
