package metrics

import (
	"time"

	"github.com/eventwindow/eventwindow/internal/observability"
)

// Window metrics following Prometheus conventions
var (
	EventsTotal              = "window_events_total"
	EvictionsTotal           = "window_evictions_total"
	LifecycleRejectionsTotal = "window_lifecycle_rejections_total"
	RunsTotal                = "window_runs_total"
	EventCount               = "window_event_count"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Stream metrics
	StreamClients = "app_stream_clients"
)

// RecordEvent records an accepted event by result (okay or buffer_overflow)
func RecordEvent(result string) {
	incr(EventsTotal, map[string]string{"result": result})
}

// RecordEviction records events dropped from the log.
// reason is "expired" (aged out) or "overflow" (forced out by a full buffer).
func RecordEviction(reason string, n int) {
	if n <= 0 || observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(EvictionsTotal, float64(n), map[string]string{"reason": reason})
}

// RecordLifecycleRejection records an operation refused by the window state machine
func RecordLifecycleRejection(op string, result string) {
	incr(LifecycleRejectionsTotal, map[string]string{
		"op":     op,
		"result": result,
	})
}

// RecordRun records a completed window
func RecordRun() {
	incr(RunsTotal, nil)
}

// SetEventCount sets the live event count gauge
func SetEventCount(count int) {
	gauge(EventCount, count)
}

// SetStreamClients sets the number of connected stream clients
func SetStreamClients(count int) {
	gauge(StreamClients, count)
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	incr(HealthCheckTotal, map[string]string{
		"check":  checkName,
		"status": status,
	})

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

func gauge(name string, value int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(name, float64(value), nil)
}
