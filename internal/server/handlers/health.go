package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/eventwindow/eventwindow/internal/core/engine"
	"github.com/eventwindow/eventwindow/internal/core/window"
	"github.com/eventwindow/eventwindow/internal/metrics"
)

// Check and aggregate statuses.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusTimeout   = "timeout"
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Window    *WindowStatus     `json:"window,omitempty"`
}

// WindowStatus summarizes the served window in the aggregate health response.
type WindowStatus struct {
	Running bool            `json:"running"`
	Limit   window.Duration `json:"limit"`
	Count   window.Count    `json:"count"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to HealthChecker
type CheckerFunc func(ctx context.Context) error

// CheckHealth calls f(ctx)
func (f CheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// HealthManager runs registered checks for the health endpoints.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	tracker  *engine.Tracker
	version  string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
	}
}

// RegisterChecker registers a health checker
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// AttachTracker adds the window summary to the aggregate health response.
func (hm *HealthManager) AttachTracker(t *engine.Tracker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.tracker = t
}

// runHealthChecks runs every checker concurrently. Checks still running
// when ctx expires are reported as timeouts.
func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, c := range hm.checkers {
		checkers[name] = c
	}
	hm.mu.RUnlock()

	type result struct {
		name   string
		status string
	}
	results := make(chan result, len(checkers))
	for name, checker := range checkers {
		go func(name string, checker HealthChecker) {
			started := time.Now()
			err := checker.CheckHealth(ctx)
			metrics.RecordHealthCheck(name, err == nil, time.Since(started))
			status := statusHealthy
			if err != nil {
				status = statusUnhealthy
			}
			results <- result{name, status}
		}(name, checker)
	}

	checks := make(map[string]string, len(checkers))
	for range checkers {
		select {
		case res := <-results:
			checks[res.name] = res.status
		case <-ctx.Done():
			for name := range checkers {
				if _, done := checks[name]; !done {
					checks[name] = statusTimeout
				}
			}
			return checks
		}
	}
	return checks
}

// determineOverallStatus folds check results: any unhealthy check fails the
// aggregate, timeouts only degrade it.
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	overall := statusHealthy
	for _, status := range checks {
		switch status {
		case statusUnhealthy:
			return statusUnhealthy
		case statusDegraded, statusTimeout:
			overall = statusDegraded
		}
	}
	return overall
}

func (hm *HealthManager) windowStatus() *WindowStatus {
	hm.mu.RLock()
	t := hm.tracker
	hm.mu.RUnlock()
	if t == nil {
		return nil
	}
	snap := t.Snapshot(t.Now())
	return &WindowStatus{Running: snap.Running, Limit: snap.Limit, Count: snap.Count}
}

// HealthHandler handles aggregate health check requests
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks, status, ok := hm.probe(w, r, "", "aggregate health check failed", 5*time.Second)
	if !ok {
		return
	}

	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Window:    hm.windowStatus(),
	})
}

// LivenessHandler reports whether the process is running.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probeHandler(w, r, "live", "liveness probe failed", 2*time.Second)
}

// ReadinessHandler reports whether the server can take window traffic.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probeHandler(w, r, "ready", "readiness probe failed", 5*time.Second)
}

// StartupHandler reports whether initialization has finished.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.probeHandler(w, r, "startup", "startup probe failed", 3*time.Second)
}

func (hm *HealthManager) probeHandler(w http.ResponseWriter, r *http.Request, probe, failure string, timeout time.Duration) {
	_, status, ok := hm.probe(w, r, probe, failure, timeout)
	if !ok {
		return
	}

	writeJSON(w, r, http.StatusOK, ProbeResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
}

// probe runs the checks and writes the error response when the result is
// unhealthy. ok reports whether the caller should write a success body.
func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, probe, failure string, timeout time.Duration) (map[string]string, string, bool) {
	checkCtx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := hm.runHealthChecks(checkCtx)
	status := hm.determineOverallStatus(checks)
	if status == statusUnhealthy {
		respondWithError(w, r, healthEnvelope(failure, probe, status, checks))
		return checks, status, false
	}
	return checks, status, true
}

func healthEnvelope(message, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	details := map[string]interface{}{"status": status}
	contextData := map[string]interface{}{"status": status}
	if probe != "" {
		details["probe"] = probe
		contextData["probe"] = probe
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}

	var failing []string
	for name, result := range checks {
		if result != statusHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		contextData["unhealthy_checks"] = failing
	}

	envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message).WithDetails(details)
	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

var globalHealthManager *HealthManager

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

// globalProbe serves probe through the global manager, or 503 before
// InitHealthManager has run.
func globalProbe(probe string, handler func(*HealthManager) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hm := globalHealthManager; hm != nil {
			handler(hm)(w, r)
			return
		}
		respondWithError(w, r, healthEnvelope("health manager not initialized", probe, "unknown", nil))
	}
}

// Handlers bound to the global manager.
var (
	HealthHandler    = globalProbe("aggregate", func(hm *HealthManager) http.HandlerFunc { return hm.HealthHandler })
	LivenessHandler  = globalProbe("live", func(hm *HealthManager) http.HandlerFunc { return hm.LivenessHandler })
	ReadinessHandler = globalProbe("ready", func(hm *HealthManager) http.HandlerFunc { return hm.ReadinessHandler })
	StartupHandler   = globalProbe("startup", func(hm *HealthManager) http.HandlerFunc { return hm.StartupHandler })
)
