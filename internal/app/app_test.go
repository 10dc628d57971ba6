package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/qaharvest/internal/config"
	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/models"
	"github.com/raphaelgruber/qaharvest/internal/scraper"
)

const articleHTML = `<html><head><title>Swift Concurrency in Practice</title></head>
<body><nav>Home | Tags</nav>
<article>
<h1>Swift Concurrency in Practice</h1>
<p>Actors protect mutable state by serializing access. Every call from outside
the actor is asynchronous and may suspend.</p>
<p>Tasks can be cancelled cooperatively; long-running work should check
Task.isCancelled or call Task.checkCancellation() periodically.</p>
</article>
<footer>Copyright</footer></body></html>`

type staticGenerator string

func (g staticGenerator) Generate(context.Context, string) (string, error) {
	return string(g), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "app.db")
	cfg.MinContentChars = 50
	cfg.QueueSize = 4
	cfg.ScrapeTimeout = 5 * time.Second
	cfg.LLMTimeout = 5 * time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, gen staticGenerator) *App {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()
	m := metrics.NewCollector()

	store, err := OpenStore(ctx, cfg, logger, m)
	require.NoError(t, err)

	s := scraper.New(scraper.Options{UserAgent: "qaharvest-test"}, logger, m)
	a, err := build(cfg, logger, m, store, gen, s)
	require.NoError(t, err)
	return a
}

func TestEndToEnd(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer site.Close()

	gen := staticGenerator(`Q: What does an actor protect in Swift?
A: Mutable state, by serializing access.

Q: How is Task cancellation handled?
A: Cooperatively, by checking Task.isCancelled.

Q: What does an actor protect in Swift?
A: Duplicate of the first question.`)

	a := newTestApp(t, testConfig(t), gen)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))

	api := httptest.NewServer(a.Handler())
	defer api.Close()

	body := strings.NewReader(fmt.Sprintf(`{"url":%q}`, site.URL+"/swift-concurrency"))
	resp, err := http.Post(api.URL+"/api/scrape", "application/json", body)
	require.NoError(t, err)
	var submitted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		job, err := a.jobs.Get(ctx, submitted.JobID)
		return err == nil && job.Status.IsTerminal()
	}, 5*time.Second, 20*time.Millisecond)

	job, err := a.jobs.Get(ctx, submitted.JobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, job.Status, "job error: %v", job.Error)
	assert.Equal(t, 2, job.QACount)

	pairs, err := a.qa.Results(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "What does an actor protect in Swift?", pairs[0].Question)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(shutdownCtx))
}

func TestStartRecoversQueuedJobs(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	// First run: create a job without any worker picking it up.
	first := newTestApp(t, cfg, staticGenerator("NO_IOS_QA"))
	job, created, err := first.jobs.Create(ctx, "http://127.0.0.1:1/unreachable")
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, first.Shutdown(ctx))

	second := newTestApp(t, cfg, staticGenerator("NO_IOS_QA"))
	require.NoError(t, second.Start(ctx))

	require.Eventually(t, func() bool {
		got, err := second.jobs.Get(ctx, job.ID)
		return err == nil && got.Status.IsTerminal()
	}, 5*time.Second, 20*time.Millisecond)

	got, err := second.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "scrape")

	require.NoError(t, second.Shutdown(ctx))
}

func TestStartTwice(t *testing.T) {
	a := newTestApp(t, testConfig(t), staticGenerator(""))
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	assert.Error(t, a.Start(ctx))
	require.NoError(t, a.Shutdown(ctx))
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backend = "mongo"

	_, err := OpenStore(context.Background(), cfg, testLogger(), nil)
	assert.ErrorContains(t, err, "unsupported backend")
}

func TestRunMCP(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer site.Close()

	gen := staticGenerator("Q: What does an actor protect in Swift?\nA: Mutable state.")
	a := newTestApp(t, testConfig(t), gen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	runErr := make(chan error, 1)
	go func() { runErr <- a.RunMCP(ctx, "0.0.1-test", serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "submit_scrape",
		Arguments: map[string]any{"url": site.URL + "/actors"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var submitted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &submitted))

	require.Eventually(t, func() bool {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "get_job",
			Arguments: map[string]any{"job_id": submitted.JobID},
		})
		if err != nil || res.IsError {
			return false
		}
		var job models.Job
		if err := json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &job); err != nil {
			return false
		}
		return job.Status == models.JobStatusCompleted && job.QACount == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("RunMCP did not return after cancel")
	}
}
