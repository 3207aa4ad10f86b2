package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"scenecast/internal/config"
	"scenecast/internal/coordinator"
	"scenecast/internal/health"
	"scenecast/internal/logging"
	"scenecast/internal/ratelimit"
)

// Server is the HTTP surface over the coordinator.
type Server struct {
	coord   *coordinator.Coordinator
	limiter ratelimit.Limiter
	checker *health.Checker
	apiKeys []string
	logger  *slog.Logger

	httpServer *http.Server
}

// NewServer wires the router and returns a server bound per config.
func NewServer(cfg *config.Config, coord *coordinator.Coordinator, limiter ratelimit.Limiter, checker *health.Checker, logger *slog.Logger) *Server {
	s := &Server{
		coord:   coord,
		limiter: limiter,
		checker: checker,
		apiKeys: cfg.Server.APIKeys,
		logger:  logging.WithComponent(logger, "httpapi"),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Bind,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(s.rateLimit)

		r.Post("/compose", s.handleCompose)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)
		r.Post("/jobs/{id}/retry", s.handleRetryJob)
		r.Delete("/jobs/{id}", s.handleDeleteJob)
		r.Get("/jobs/{id}/download", s.handleDownload)
	})
	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http api listening", logging.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
