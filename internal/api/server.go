// Package api serves the admin HTTP surface: health, loop status, the task
// journal, live events and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/meshmgr/internal/events"
	"github.com/mattjoyce/meshmgr/internal/journal"
	"github.com/mattjoyce/meshmgr/internal/log"
	"github.com/mattjoyce/meshmgr/internal/metrics"
	"github.com/mattjoyce/meshmgr/internal/orchestrator"
)

// LoopReporter exposes the state of the running poll loops.
type LoopReporter interface {
	Status() []orchestrator.LoopStatus
}

// TaskLog reads recently processed tasks.
type TaskLog interface {
	Recent(ctx context.Context, agentID string, limit int) ([]journal.Entry, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// Token is the bearer token required on every route except /healthz.
	// Empty disables authentication.
	Token string
}

// Server is the admin HTTP server.
type Server struct {
	config    Config
	loops     LoopReporter
	tasks     TaskLog
	events    *events.Hub
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	keepAlive time.Duration
}

// New creates a server. tasks and m may be nil; their routes then report
// the feature as disabled.
func New(config Config, loops LoopReporter, tasks TaskLog, hub *events.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(0)
	}
	return &Server{
		config:    config,
		loops:     loops,
		tasks:     tasks,
		events:    hub,
		metrics:   m,
		logger:    log.WithComponent(logger, "api"),
		startedAt: time.Now(),
		keepAlive: 15 * time.Second,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.Token != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/agents", s.handleAgents)
		r.Get("/tasks", s.handleTasks)
		r.Get("/events", s.handleEvents)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
