// Package app wires configuration, storage, the extraction pipeline, the
// worker pool and the HTTP API into one process and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/qaharvest/internal/config"
	"github.com/raphaelgruber/qaharvest/internal/db"
	"github.com/raphaelgruber/qaharvest/internal/dedup"
	"github.com/raphaelgruber/qaharvest/internal/llm"
	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/scraper"
	"github.com/raphaelgruber/qaharvest/internal/server"
	"github.com/raphaelgruber/qaharvest/internal/service"
	"github.com/raphaelgruber/qaharvest/internal/sqldb"
	"github.com/raphaelgruber/qaharvest/internal/tools"
)

// drainTimeout bounds how long shutdown waits for queued items to be
// processed before workers stop taking new ones.
const drainTimeout = 30 * time.Second

// App is a running harvester.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Collector

	store     service.Store
	queue     *service.Queue
	jobs      *service.JobManager
	qa        *service.QAService
	submitter *service.Submitter
	pipeline  *service.Pipeline
	retention *service.Retention
	server    *server.Server

	workerCancel context.CancelFunc
	workers      sync.WaitGroup
	started      bool
}

// New opens the configured store and LLM provider chain and builds the app.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.NewCollector()

	store, err := OpenStore(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}

	model, err := llm.NewModel(ctx, cfg, logger, m)
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("init llm: %w", err)
	}
	logger.Info("llm providers ready", "providers", model.Providers())

	s := scraper.New(scraper.Options{
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.ScrapeRPS,
		Retry:             scraper.DefaultRetryPolicy(cfg.ScrapeRetries),
	}, logger, m)

	a, err := build(cfg, logger, m, store, model, s)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return a, nil
}

// Scraper is what the app needs from the scraper: article extraction for
// the pipeline and raw pages for discovery.
type Scraper interface {
	service.ArticleScraper
	service.PageFetcher
}

func build(cfg config.Config, logger *slog.Logger, m *metrics.Collector, store service.Store, gen llm.Generator, s Scraper) (*App, error) {
	var oracle dedup.Oracle
	if cfg.OracleEnabled {
		oracle = llm.NewPairOracle(gen, cfg.Topic, m)
	}

	jobs := service.NewJobManager(store, logger, cfg.CascadeQAOnCleanup)
	qa := service.NewQAService(store, dedup.New(cfg.Dedup, oracle, logger), logger, m)
	queue := service.NewQueue(cfg.QueueSize)
	disc := service.NewDiscoverer(s, jobs, cfg.DiscoverySeeds, cfg.TagPages, logger)
	sub := service.NewSubmitter(jobs, queue, disc, logger)

	pipeline := service.NewPipeline(jobs, qa, s, gen, service.PipelineOptions{
		Topic:           cfg.Topic,
		MaxContentChars: cfg.MaxContentChars,
		MinContentChars: cfg.MinContentChars,
		Policy:          cfg.ParsePolicy,
		ScrapeTimeout:   cfg.ScrapeTimeout,
		ExtractTimeout:  cfg.LLMTimeout,
	}, logger, m)

	retention, err := service.NewRetention(jobs, cfg.CleanupSchedule, cfg.CleanupAge, logger)
	if err != nil {
		return nil, err
	}

	srv := server.New(server.Deps{
		Jobs:      jobs,
		Submitter: sub,
		QA:        qa,
		QueueLen:  queue.Len,
		Metrics:   m,
	}, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		store:     store,
		queue:     queue,
		jobs:      jobs,
		qa:        qa,
		submitter: sub,
		pipeline:  pipeline,
		retention: retention,
		server:    srv,
	}, nil
}

// OpenStore connects the storage backend named by cfg.Backend and makes
// sure its schema exists.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Collector) (service.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqldb.OpenSQLite(ctx, cfg.SQLitePath, logger, m)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil

	case config.BackendPostgres:
		s, err := sqldb.OpenPostgres(ctx, cfg.PostgresDSN, logger, m)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil

	case config.BackendSurreal:
		c, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger, m)
		if err != nil {
			return nil, fmt.Errorf("connect to surrealdb: %w", err)
		}
		if err := c.InitSchema(ctx); err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// MCPServer returns an MCP server exposing the app's services as tools.
func (a *App) MCPServer(version string) *mcp.Server {
	srv := server.NewMCP(version, a.logger)
	tools.RegisterAll(srv, &tools.Dependencies{
		Submitter: a.submitter,
		Jobs:      a.jobs,
		QA:        a.qa,
		QueueLen:  a.queue.Len,
		Logger:    a.logger,
	})
	return srv
}

// RunMCP starts the app and serves MCP on t until the client disconnects
// or ctx is cancelled, then shuts everything down.
func (a *App) RunMCP(ctx context.Context, version string, t mcp.Transport) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	a.logger.Info("starting MCP server")
	runErr := a.MCPServer(version).Run(ctx, t)
	if ctx.Err() != nil {
		runErr = nil
	}
	if runErr != nil {
		a.logger.Error("mcp server error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout+10*time.Second)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Start re-enqueues jobs left over from a previous run, starts the workers
// and the cleanup scheduler.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return errors.New("app already started")
	}
	a.started = true

	if _, err := a.queue.Recover(ctx, a.jobs, a.logger); err != nil {
		return fmt.Errorf("recover queued jobs: %w", err)
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.workerCancel = cancel
	for i := range a.cfg.Workers {
		w := service.NewWorker(i+1, a.queue, a.pipeline, a.jobs, a.logger)
		a.workers.Add(1)
		go func() {
			defer a.workers.Done()
			w.Run(workerCtx)
		}()
	}
	a.logger.Info("workers started", "count", a.cfg.Workers, "queue_size", a.cfg.QueueSize)

	a.retention.Start()
	return nil
}

// Run starts the app and serves HTTP until ctx is cancelled, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe(a.cfg.ListenAddr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case serveErr = <-errCh:
		if serveErr != nil {
			a.logger.Error("server error", "error", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout+10*time.Second)
	defer cancel()
	return errors.Join(serveErr, a.Shutdown(shutdownCtx))
}

// Shutdown stops the HTTP server, lets the workers drain the queue for up
// to drainTimeout, waits for in-flight jobs and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}

	a.queue.Close()
	if a.started {
		drained := make(chan struct{})
		go func() {
			a.workers.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-time.After(drainTimeout):
			a.logger.Warn("queue not drained, remaining jobs stay queued", "remaining", a.queue.Len())
			a.workerCancel()
			<-drained
		}
		a.workerCancel()
		a.retention.Stop(ctx)
	}

	if err := a.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
