package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/models"
	"github.com/raphaelgruber/qaharvest/internal/parser"
	"github.com/raphaelgruber/qaharvest/internal/scraper"
)

type scraperFunc func(ctx context.Context, url string) (*scraper.Article, error)

func (f scraperFunc) Scrape(ctx context.Context, url string) (*scraper.Article, error) {
	return f(ctx, url)
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var longArticle = "# Swift interview\n\n" + strings.Repeat("Automatic reference counting manages memory for class instances. ", 10)

func staticArticle(markdown string) scraperFunc {
	return func(_ context.Context, url string) (*scraper.Article, error) {
		return &scraper.Article{URL: url, Markdown: markdown}, nil
	}
}

func staticAnswer(raw string) generatorFunc {
	return func(context.Context, string) (string, error) { return raw, nil }
}

type pipelineFixture struct {
	store *memStore
	jobs  *JobManager
	qa    *QAService
	m     *metrics.Collector
}

func newPipelineFixture() *pipelineFixture {
	store := newMemStore()
	return &pipelineFixture{
		store: store,
		jobs:  newTestJobManager(store),
		qa:    newTestQAService(store),
		m:     metrics.NewCollector(),
	}
}

func (f *pipelineFixture) pipeline(s ArticleScraper, g generatorFunc, opts PipelineOptions) *Pipeline {
	if opts.Topic == "" {
		opts.Topic = "iOS/Swift"
	}
	if opts.MinContentChars == 0 {
		opts.MinContentChars = 200
	}
	if opts.Policy.QuestionPrefix == "" {
		opts.Policy = parser.AcceptOpenQuestions
	}
	return NewPipeline(f.jobs, f.qa, s, g, opts, testLogger(), f.m)
}

func (f *pipelineFixture) submit(t *testing.T, url string) WorkItem {
	t.Helper()
	job, _, err := f.jobs.Create(context.Background(), url)
	require.NoError(t, err)
	return WorkItem{JobID: job.ID, URL: url}
}

func TestPipelineProcess(t *testing.T) {
	f := newPipelineFixture()
	var prompt string
	gen := generatorFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "Q: What is ARC?\nA: Automatic reference counting.\nQ: What is a weak reference?\nA: A reference that does not retain.", nil
	})
	p := f.pipeline(staticArticle(longArticle), gen, PipelineOptions{})

	item := f.submit(t, "https://example.com/a")
	require.NoError(t, p.Process(context.Background(), item))

	job, err := f.jobs.Get(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.QACount)
	assert.Contains(t, prompt, "iOS/Swift")
	assert.Contains(t, prompt, "Automatic reference counting manages memory")

	assert.Equal(t, int64(1), f.m.Snapshot().Operations[metrics.OpJob].Count)
}

func TestPipelineNoResultsMarker(t *testing.T) {
	f := newPipelineFixture()
	p := f.pipeline(staticArticle(longArticle), staticAnswer("NO_IOS_QA"), PipelineOptions{})

	item := f.submit(t, "https://example.com/a")
	require.NoError(t, p.Process(context.Background(), item))

	job, err := f.jobs.Get(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Zero(t, job.QACount)
}

func TestPipelineSkipsShortArticle(t *testing.T) {
	f := newPipelineFixture()
	var calls atomic.Int32
	gen := generatorFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", nil
	})
	p := f.pipeline(staticArticle("too short"), gen, PipelineOptions{})

	item := f.submit(t, "https://example.com/a")
	require.NoError(t, p.Process(context.Background(), item))

	job, err := f.jobs.Get(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Zero(t, calls.Load())
}

func TestPipelineScrapeFailure(t *testing.T) {
	f := newPipelineFixture()
	s := scraperFunc(func(context.Context, string) (*scraper.Article, error) {
		return nil, scraper.ErrEmptyContent
	})
	p := f.pipeline(s, staticAnswer(""), PipelineOptions{})

	item := f.submit(t, "https://example.com/a")
	require.NoError(t, p.Process(context.Background(), item))

	job, err := f.jobs.Get(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "no readable content")
	assert.NotNil(t, job.CompletedAt)
}

func TestPipelineScrapeTimeout(t *testing.T) {
	f := newPipelineFixture()
	s := scraperFunc(func(ctx context.Context, _ string) (*scraper.Article, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := f.pipeline(s, staticAnswer(""), PipelineOptions{ScrapeTimeout: 20 * time.Millisecond})

	item := f.submit(t, "https://example.com/a")
	require.NoError(t, p.Process(context.Background(), item))

	job, err := f.jobs.Get(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "scrape timed out after 20ms", *job.Error)
}

func TestPipelineExtractionTimeout(t *testing.T) {
	f := newPipelineFixture()
	gen := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := f.pipeline(staticArticle(longArticle), gen, PipelineOptions{ExtractTimeout: 20 * time.Millisecond})

	item := f.submit(t, "https://example.com/a")
	require.NoError(t, p.Process(context.Background(), item))

	job, err := f.jobs.Get(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, "extraction timed out after 20ms", *job.Error)
}

func TestPipelineExtractionError(t *testing.T) {
	f := newPipelineFixture()
	gen := generatorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("all providers down")
	})
	p := f.pipeline(staticArticle(longArticle), gen, PipelineOptions{})

	item := f.submit(t, "https://example.com/a")
	require.NoError(t, p.Process(context.Background(), item))

	job, err := f.jobs.Get(context.Background(), item.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "extract: all providers down", *job.Error)
	assert.Equal(t, int64(1), f.m.Snapshot().Operations[metrics.OpJob].Failures)
}

func TestPipelineSkipsNonQueuedJob(t *testing.T) {
	f := newPipelineFixture()
	var calls atomic.Int32
	s := scraperFunc(func(context.Context, string) (*scraper.Article, error) {
		calls.Add(1)
		return &scraper.Article{Markdown: longArticle}, nil
	})
	p := f.pipeline(s, staticAnswer("NO_IOS_QA"), PipelineOptions{})

	item := f.submit(t, "https://example.com/a")
	require.NoError(t, p.Process(context.Background(), item))
	require.NoError(t, p.Process(context.Background(), item))
	require.NoError(t, p.Process(context.Background(), WorkItem{JobID: "missing"}))

	assert.Equal(t, int32(1), calls.Load())
}
