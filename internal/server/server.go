// Package server exposes the harvester over a JSON REST API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/models"
	"github.com/raphaelgruber/qaharvest/internal/service"
)

// JobReader looks up and cleans up jobs.
type JobReader interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// URLSubmitter creates jobs for URLs.
type URLSubmitter interface {
	Submit(ctx context.Context, url string) (*service.SubmitResult, error)
	SubmitRandom(ctx context.Context, count int) ([]service.SubmitResult, error)
	Discover(ctx context.Context, count int) ([]string, error)
}

// QAReader reads stored Q&A pairs and aggregate counts.
type QAReader interface {
	Results(ctx context.Context, jobID string) ([]models.QAPair, error)
	List(ctx context.Context, limit, offset int) (*models.QAPage, error)
	Stats(ctx context.Context, queueSize int) (models.Stats, error)
}

// Deps are the services the API is built on.
type Deps struct {
	Jobs      JobReader
	Submitter URLSubmitter
	QA        QAReader
	QueueLen  func() int
	Metrics   *metrics.Collector

	// WatchInterval is how often a watched job is re-read. Defaults to 500ms.
	WatchInterval time.Duration
}

// Server is the HTTP API.
type Server struct {
	deps          Deps
	logger        *slog.Logger
	validator     *requestValidator
	watchInterval time.Duration
	router        chi.Router
	http          *http.Server
}

// New creates a Server and registers all routes.
func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.QueueLen == nil {
		deps.QueueLen = func() int { return 0 }
	}

	s := &Server{
		deps:          deps,
		logger:        logger,
		validator:     newRequestValidator(),
		watchInterval: deps.WatchInterval,
	}
	if s.watchInterval <= 0 {
		s.watchInterval = defaultWatchInterval
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/scrape", s.handleScrape)
		r.Post("/scrape/random", s.handleScrapeRandom)
		r.Get("/discover", s.handleDiscover)

		r.Route("/jobs", func(r chi.Router) {
			r.Delete("/", s.handleCleanup)
			r.Get("/{id}", s.handleGetJob)
			r.Get("/{id}/results", s.handleJobResults)
			r.Get("/{id}/watch", s.handleWatchJob)
		})

		r.Get("/qa", s.handleListQA)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves the API on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
