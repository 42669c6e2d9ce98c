package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/mattjoyce/watchit/internal/app"
	"github.com/mattjoyce/watchit/internal/events"
	"github.com/mattjoyce/watchit/internal/history"
	"github.com/mattjoyce/watchit/internal/runner"
)

//go:generate mockgen -destination=mocks/mock_controller.go -package=mocks github.com/mattjoyce/watchit/internal/api Controller

// Controller is the part of the running service the API drives.
// *app.App implements it.
type Controller interface {
	Status() []app.WatchStatus
	TriggerNow(id string) (string, error)
	Stop(id string) (bool, error)
	Runs(ctx context.Context, watchID string, limit int) ([]history.Run, error)
	Failures(ctx context.Context, runID string) ([]runner.Failure, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// AllowedOrigins enables CORS for these origins. Empty disables CORS.
	AllowedOrigins []string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	ctrl      Controller
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, ctrl Controller, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		ctrl:      ctrl,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

const (
	readHeaderTimeout = 5 * time.Second
	shutdownGrace     = 5 * time.Second
)

// Start listens on the configured address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the API on ln until ctx ends, then drains open requests.
// Event streams hold their connection open, so there is no write timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("API server listening", "addr", ln.Addr().String())

	served := make(chan error, 1)
	go func() { served <- s.server.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return ctx.Err()
}

// Handler returns the API's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   s.config.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"Content-Type", "Last-Event-ID"},
			AllowCredentials: false,
		}).Handler)
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Route("/watches", func(r chi.Router) {
		r.Get("/", s.handleListWatches)
		r.Post("/{watchID}/run", s.handleRunWatch)
		r.Post("/{watchID}/stop", s.handleStopWatch)
	})
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{runID}/failures", s.handleRunFailures)
	r.Get("/events", s.handleEvents)

	return r
}

// loggingMiddleware logs each request at debug, and server errors at warn.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "api request",
			"method", r.Method,
			"route", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(began).Round(time.Millisecond).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
