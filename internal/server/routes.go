package server

import (
	"net/http"
	"os"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eventwindow/eventwindow/internal/config"
	"github.com/eventwindow/eventwindow/internal/observability"
	"github.com/eventwindow/eventwindow/internal/server/handlers"
)

// AdminTokenEnv enables POST /admin/signal when set
const AdminTokenEnv = config.EnvPrefix + "ADMIN_TOKEN"

// Admin signal endpoint rate limit, per minute.
const (
	adminRatePerMinute = 10
	adminRateBurst     = 5
)

func (s *Server) registerRoutes() {
	r := s.router

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)
	r.Get("/metrics", s.metricsHandler)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/window", func(w chi.Router) {
			w.Get("/limit", s.window.GetLimit)
			w.Put("/limit", s.window.SetLimit)
			w.Get("/time", s.window.WindowTime)
			w.Post("/start", s.window.Start)
			w.Post("/stop", s.window.Stop)
		})
		v1.Post("/events", s.window.AddEvent)
		v1.Delete("/events", s.window.ClearEvents)
		v1.Get("/events/count", s.window.EventCount)
		v1.Get("/snapshot", s.window.Snapshot)
		v1.Get("/runs", s.window.Runs)
		if s.hub != nil {
			v1.Get("/stream", s.hub.ServeHTTP)
		}
	})

	if h := adminSignalHandler(observability.ServerLogger); h != nil {
		r.Post("/admin/signal", h.ServeHTTP)
	}
}

// adminSignalHandler returns the bearer-token protected signal endpoint, or
// nil when no token is configured.
func adminSignalHandler(logger *logging.Logger) http.Handler {
	token := os.Getenv(AdminTokenEnv)
	if token == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + AdminTokenEnv + " set)")
		}
		return nil
	}

	if logger != nil {
		logger.Warn("Admin signal endpoint enabled; keep this server off the public internet",
			zap.String("path", "/admin/signal"),
			zap.Int("rate_per_minute", adminRatePerMinute),
			zap.Int("burst", adminRateBurst))
	}
	return signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: adminRatePerMinute,
		RateBurst: adminRateBurst,
	})
}
