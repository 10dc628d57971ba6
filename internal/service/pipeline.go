package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/qaharvest/internal/llm"
	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/models"
	"github.com/raphaelgruber/qaharvest/internal/parser"
	"github.com/raphaelgruber/qaharvest/internal/scraper"
)

// ArticleScraper fetches a URL and returns its main content as markdown.
// *scraper.Scraper implements it.
type ArticleScraper interface {
	Scrape(ctx context.Context, url string) (*scraper.Article, error)
}

// PipelineOptions tunes the per-job work.
type PipelineOptions struct {
	Topic           string
	MaxContentChars int
	// MinContentChars is the article length below which extraction is
	// skipped and the job completes with no pairs.
	MinContentChars int
	Policy          parser.Policy
	ScrapeTimeout   time.Duration
	ExtractTimeout  time.Duration
}

// Pipeline runs one job: scrape, trim, extract, parse, dedup, persist.
type Pipeline struct {
	jobs    *JobManager
	qa      *QAService
	scraper ArticleScraper
	gen     llm.Generator
	opts    PipelineOptions
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewPipeline creates a Pipeline.
func NewPipeline(jobs *JobManager, qa *QAService, s ArticleScraper, gen llm.Generator, opts PipelineOptions, logger *slog.Logger, m *metrics.Collector) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = parser.DefaultMaxArticleChars
	}
	return &Pipeline{jobs: jobs, qa: qa, scraper: s, gen: gen, opts: opts, logger: logger, metrics: m}
}

// Process takes a queued job to a terminal state. Errors from the work
// itself mark the job failed and are not returned; the returned error is
// only for state-store failures.
func (p *Pipeline) Process(ctx context.Context, item WorkItem) error {
	start := time.Now()

	if _, err := p.jobs.Start(ctx, item.JobID); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) {
			p.logger.Warn("skipping work item", "job_id", item.JobID, "error", err)
			return nil
		}
		return fmt.Errorf("start job: %w", err)
	}
	p.logger.Info("job started", "job_id", item.JobID, "url", item.URL)

	count, runErr := p.run(ctx, item)
	p.metrics.Observe(metrics.OpJob, start, runErr)

	if runErr != nil {
		if _, err := p.jobs.Fail(ctx, item.JobID, runErr.Error()); err != nil {
			return fmt.Errorf("fail job: %w", err)
		}
		return nil
	}

	if _, err := p.jobs.Complete(ctx, item.JobID, count); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	p.logger.Info("job finished", "job_id", item.JobID, "qa_count", count, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Pipeline) run(ctx context.Context, item WorkItem) (int, error) {
	article, err := p.scrape(ctx, item.URL)
	if err != nil {
		return 0, err
	}

	length := parser.ContentLength(article.Markdown)
	if length < p.opts.MinContentChars {
		p.logger.Info("article too short, skipping extraction", "job_id", item.JobID, "chars", length)
		return 0, nil
	}

	content := parser.TrimArticle(article.Markdown, p.opts.MaxContentChars)
	raw, err := p.extract(ctx, content)
	if err != nil {
		return 0, err
	}

	pairs := parser.ParseQA(raw, p.opts.Policy)
	if len(pairs) == 0 {
		p.logger.Info("no qa pairs found", "job_id", item.JobID)
		return 0, nil
	}

	n, err := p.qa.Save(ctx, item.JobID, item.URL, pairs)
	if err != nil {
		return 0, fmt.Errorf("save qa pairs: %w", err)
	}
	return n, nil
}

func (p *Pipeline) scrape(ctx context.Context, url string) (*scraper.Article, error) {
	ctx, cancel := withOptionalTimeout(ctx, p.opts.ScrapeTimeout)
	defer cancel()

	article, err := p.scraper.Scrape(ctx, url)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("scrape timed out after %s", p.opts.ScrapeTimeout)
		}
		return nil, fmt.Errorf("scrape: %w", err)
	}
	return article, nil
}

func (p *Pipeline) extract(ctx context.Context, content string) (string, error) {
	ctx, cancel := withOptionalTimeout(ctx, p.opts.ExtractTimeout)
	defer cancel()

	prompt := llm.ExtractionPrompt(p.opts.Topic, content, p.opts.Policy.NoResultsMarker)
	raw, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("extraction timed out after %s", p.opts.ExtractTimeout)
		}
		return "", fmt.Errorf("extract: %w", err)
	}
	return raw, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
