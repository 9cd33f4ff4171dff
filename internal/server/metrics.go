package server

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eventwindow/eventwindow/internal/config"
	apperrors "github.com/eventwindow/eventwindow/internal/errors"
	"github.com/eventwindow/eventwindow/internal/metrics"
	"github.com/eventwindow/eventwindow/internal/observability"
)

var metricsProxyClient = &http.Client{
	Timeout: 5 * time.Second,
}

// hopHeaders are connection-scoped and never copied from the exporter.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// metricsHandler proxies the internal Prometheus exporter on /metrics.
// Expiry is lazy, so the event count gauge is refreshed from a snapshot at
// the current tick before every scrape.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	snap := s.tracker.Snapshot(s.tracker.Now())
	metrics.SetEventCount(int(snap.Count))

	proxyMetrics(w, r)
}

func proxyMetrics(w http.ResponseWriter, r *http.Request) {
	fallbackPort := 0
	if cfg := config.GetConfig(); cfg != nil {
		fallbackPort = cfg.Metrics.Port
	}
	metricsURL := observability.MetricsURL(fallbackPort)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, metricsURL, nil)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "unable to construct metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapExternalService(r.Context(), err, "Prometheus exporter unavailable"))
		return
	}
	defer resp.Body.Close() // nolint:errcheck // response fully copied below

	for key, values := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write metrics response", zap.Error(err))
	}
}
