package client_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/qaharvest/internal/client"
	"github.com/raphaelgruber/qaharvest/internal/dedup"
	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/models"
	"github.com/raphaelgruber/qaharvest/internal/server"
	"github.com/raphaelgruber/qaharvest/internal/service"
	"github.com/raphaelgruber/qaharvest/internal/sqldb"
)

func setup(t *testing.T) (*client.Client, *service.JobManager, *service.QAService) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewCollector()

	store, err := sqldb.OpenSQLite(ctx, filepath.Join(t.TempDir(), "client.db"), logger, m)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })

	jobs := service.NewJobManager(store, logger, false)
	qa := service.NewQAService(store, dedup.New(dedup.DefaultConfig(), nil, logger), logger, m)
	queue := service.NewQueue(8)
	disc := service.NewDiscoverer(nil, jobs, []string{"https://blog.example.com/seed"}, nil, logger)

	api := server.New(server.Deps{
		Jobs:          jobs,
		Submitter:     service.NewSubmitter(jobs, queue, disc, logger),
		QA:            qa,
		QueueLen:      queue.Len,
		Metrics:       m,
		WatchInterval: 10 * time.Millisecond,
	}, logger)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return client.New(srv.URL), jobs, qa
}

func TestSubmitAndFetch(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	res, err := c.Submit(ctx, "https://blog.example.com/a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, res.Status)

	job, err := c.GetJob(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example.com/a", job.URL)

	pairs, err := c.Results(ctx, res.JobID)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalJobs)
	assert.Equal(t, 1, st.QueueSize)
}

func TestErrors(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	_, err := c.GetJob(ctx, "missing")
	require.ErrorIs(t, err, client.ErrNotFound)

	_, err = c.Submit(ctx, "not a url")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "validation_error", apiErr.Code)
	require.Len(t, apiErr.Details, 1)
	assert.Equal(t, "url", apiErr.Details[0].Field)
}

func TestDiscoverAndRandom(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	urls, err := c.Discover(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://blog.example.com/seed"}, urls)

	res, err := c.SubmitRandom(ctx, 1)
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "https://blog.example.com/seed", res.Jobs[0].URL)
}

func TestListQAAndCleanup(t *testing.T) {
	c, jobs, qa := setup(t)
	ctx := context.Background()

	job, _, err := jobs.Create(ctx, "https://blog.example.com/a")
	require.NoError(t, err)
	_, err = qa.Save(ctx, job.ID, job.URL, []models.QAPair{
		{Question: "What is a Sendable type?", Answer: "One safe to share across actors."},
	})
	require.NoError(t, err)
	_, err = jobs.Start(ctx, job.ID)
	require.NoError(t, err)
	_, err = jobs.Complete(ctx, job.ID, 1)
	require.NoError(t, err)

	page, err := c.ListQA(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "What is a Sendable type?", page.Items[0].Question)

	n, err := c.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Pairs survive a non-cascading cleanup.
	page, err = c.ListQA(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestHealth(t *testing.T) {
	c, _, _ := setup(t)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
}

func TestWatchJob(t *testing.T) {
	c, jobs, _ := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, _, err := jobs.Create(ctx, "https://blog.example.com/a")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = jobs.Start(context.Background(), job.ID)
		time.Sleep(50 * time.Millisecond)
		_, _ = jobs.Complete(context.Background(), job.ID, 3)
	}()

	var seen []models.JobStatus
	err = c.WatchJob(ctx, job.ID, func(j models.Job) error {
		seen = append(seen, j.Status)
		return nil
	})
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	assert.Equal(t, models.JobStatusQueued, seen[0])
	assert.Equal(t, models.JobStatusCompleted, seen[len(seen)-1])
}

func TestWatchUnknownJob(t *testing.T) {
	c, _, _ := setup(t)

	err := c.WatchJob(context.Background(), "missing", func(models.Job) error { return nil })
	require.ErrorIs(t, err, client.ErrNotFound)
}
