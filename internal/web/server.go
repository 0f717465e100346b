// Package web exposes the generator over HTTP: job creation, status
// polling, a server-sent event stream per job and artifact retrieval.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lllllllleong/casedocflow/internal/models"
	"github.com/Lllllllleong/casedocflow/internal/services"
	"github.com/Lllllllleong/casedocflow/internal/status"
)

// JobService is the generator as seen by the handlers.
type JobService interface {
	StartJob(ctx context.Context, req services.JobRequest) (string, error)
	GetArtifact(ctx context.Context, jobID string) (*services.Artifact, error)
	DocumentTypes(ctx context.Context) []models.DocumentTypeInfo
}

// StatusSource serves the pull and push status channels.
type StatusSource interface {
	GetStatus(ctx context.Context, namespace, jobID string) (*models.JobStatusRecord, error)
	Subscribe(ctx context.Context, namespace, jobID string) (*status.Subscription, error)
}

// Options tunes the server. Zero values fall back to defaults.
type Options struct {
	Heartbeat      time.Duration
	MaxBodyBytes   int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MetricsHandler http.Handler
}

// Server is the HTTP server of the generator.
type Server struct {
	jobs   JobService
	status StatusSource
	opts   Options
	router *chi.Mux
	server *http.Server
}

func NewServer(jobs JobService, statusSource StatusSource, opts Options) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		jobs:   jobs,
		status: statusSource,
		opts:   opts,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.opts.MetricsHandler != nil {
		s.router.Handle("/metrics", s.opts.MetricsHandler)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/document-types", s.handleDocumentTypes)

		r.Post("/jobs", s.handleStartJob)
		r.Get("/jobs/{namespace}/{jobID}", s.handleGetStatus)
		r.Get("/jobs/{namespace}/{jobID}/events", s.handleEvents)
		r.Get("/jobs/{namespace}/{jobID}/artifact", s.handleArtifact)
	})
}

// Router returns the handler, for tests and for the function entrypoint.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	slog.Info("Starting HTTP server.", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
