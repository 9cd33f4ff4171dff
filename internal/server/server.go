package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/eventwindow/eventwindow/internal/config"
	"github.com/eventwindow/eventwindow/internal/core/engine"
	apperrors "github.com/eventwindow/eventwindow/internal/errors"
	"github.com/eventwindow/eventwindow/internal/observability"
	"github.com/eventwindow/eventwindow/internal/server/handlers"
	servermw "github.com/eventwindow/eventwindow/internal/server/middleware"
)

// Options wires the window API into the server.
type Options struct {
	// Tracker backs the /v1 API. A fresh tracker is created when nil.
	Tracker *engine.Tracker
	// Runs serves /v1/runs. Nil answers 503.
	Runs handlers.RunLister
	// Stream enables the /v1/stream websocket.
	Stream bool
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	cfg     config.ServerConfig
	tracker *engine.Tracker
	window  *handlers.WindowHandler

	hub          *handlers.StreamHub
	streamCancel func()
}

// New creates a new HTTP server instance
func New(cfg config.ServerConfig, opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)      // correlation first
	r.Use(servermw.RequestMetrics) // sees the 500 a recovered panic writes
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewNotFoundError("The requested resource was not found")
		apperrors.RespondWithError(w, req, err)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource")
		apperrors.RespondWithError(w, req, err)
	})

	tracker := opts.Tracker
	if tracker == nil {
		tracker = engine.New(engine.Options{})
	}

	s := &Server{
		router:  r,
		cfg:     cfg,
		tracker: tracker,
		window:  handlers.NewWindowHandler(tracker, opts.Runs),
	}

	if opts.Stream {
		s.hub = handlers.NewStreamHub(tracker)
		snaps, cancel := tracker.Subscribe()
		s.streamCancel = cancel
		go s.hub.Run(snaps)
	}

	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDefault(s.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(s.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  orDefault(s.cfg.IdleTimeout, 120*time.Second),
	}

	observability.ServerLogger.Info("Starting HTTP server",
		zap.String("host", s.cfg.Host),
		zap.Int("port", s.cfg.Port),
		zap.String("addr", addr),
		zap.Bool("stream", s.hub != nil))

	return s.server.ListenAndServe()
}

// Shutdown disconnects stream clients, then gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	if s.streamCancel != nil {
		s.streamCancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Tracker returns the tracker behind the /v1 API
func (s *Server) Tracker() *engine.Tracker {
	return s.tracker
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.cfg.Port
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
