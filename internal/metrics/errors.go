package metrics

import (
	"strconv"

	"github.com/eventwindow/eventwindow/internal/observability"
)

// Error metric names
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// RecordError records an API error by envelope code and HTTP status
func RecordError(errorCode string, httpStatus int) {
	incr(ErrorsTotalName, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic records a recovered handler panic
func RecordPanic() {
	incr(PanicsTotalName, nil)
}

// RecordErrorByEndpoint records an error against the route pattern that produced it
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	incr(ErrorsByEndpointName, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}

func incr(name string, tags map[string]string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(name, 1, tags)
}
