// Package storetest holds the behaviour every service.Store backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/qaharvest/internal/models"
	"github.com/raphaelgruber/qaharvest/internal/service"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) service.Store

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s service.Store)
	}{
		{"JobRoundTrip", testJobRoundTrip},
		{"DuplicateURL", testDuplicateURL},
		{"UpdateJob", testUpdateJob},
		{"UpdateUnknownJob", testUpdateUnknownJob},
		{"ListByStatus", testListByStatus},
		{"QAPairs", testQAPairs},
		{"Paginate", testPaginate},
		{"Stats", testStats},
		{"DeleteTerminal", testDeleteTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func newJob(id, url string, created time.Time) *models.Job {
	return &models.Job{ID: id, URL: url, Status: models.JobStatusQueued, CreatedAt: created}
}

func finish(t *testing.T, s service.Store, id string, status models.JobStatus, at time.Time) {
	t.Helper()
	require.NoError(t, s.UpdateJob(context.Background(), id, models.JobUpdate{Status: &status, CompletedAt: &at}))
}

func testJobRoundTrip(t *testing.T, s service.Store) {
	ctx := context.Background()

	missing, err := s.GetJob(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = s.FindJobByURL(ctx, "https://example.com/none")
	require.NoError(t, err)
	assert.Nil(t, missing)

	job := newJob("job-1", "https://example.com/a", base)
	require.NoError(t, s.InsertJob(ctx, job))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.URL, got.URL)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Zero(t, got.QACount)
	assert.Nil(t, got.Error)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))

	byURL, err := s.FindJobByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, byURL)
	assert.Equal(t, "job-1", byURL.ID)
}

func testDuplicateURL(t *testing.T, s service.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertJob(ctx, newJob("job-1", "https://example.com/a", base)))

	err := s.InsertJob(ctx, newJob("job-2", "https://example.com/a", base))
	assert.ErrorIs(t, err, models.ErrJobExists)
}

func testUpdateJob(t *testing.T, s service.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertJob(ctx, newJob("job-1", "https://example.com/a", base)))

	status := models.JobStatusFailed
	msg := "scrape timed out after 1m0s"
	count := 3
	done := base.Add(time.Minute)
	require.NoError(t, s.UpdateJob(ctx, "job-1", models.JobUpdate{
		Status: &status, Error: &msg, QACount: &count, CompletedAt: &done,
	}))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, 3, got.QACount)
	require.NotNil(t, got.Error)
	assert.Equal(t, msg, *got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
}

func testUpdateUnknownJob(t *testing.T, s service.Store) {
	status := models.JobStatusProcessing
	err := s.UpdateJob(context.Background(), "missing", models.JobUpdate{Status: &status})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testListByStatus(t *testing.T, s service.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertJob(ctx, newJob("late", "https://example.com/late", base.Add(time.Hour))))
	require.NoError(t, s.InsertJob(ctx, newJob("early", "https://example.com/early", base)))
	require.NoError(t, s.InsertJob(ctx, newJob("done", "https://example.com/done", base)))
	finish(t, s, "done", models.JobStatusCompleted, base)

	queued, err := s.ListJobsByStatus(ctx, models.JobStatusQueued)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "early", queued[0].ID)
	assert.Equal(t, "late", queued[1].ID)

	urls, err := s.ListCompletedURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/done"}, urls)
}

func pair(job, q string, ts time.Time) models.QAPair {
	return models.QAPair{JobID: job, Question: q, Answer: "A " + q, SourceURL: "https://example.com/" + job, Timestamp: ts}
}

func testQAPairs(t *testing.T, s service.Store) {
	ctx := context.Background()

	n, err := s.InsertQAPairs(ctx, []models.QAPair{pair("j1", "first", base), pair("j1", "second", base)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.InsertQAPairs(ctx, []models.QAPair{pair("j2", "third", base.Add(time.Second))})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.InsertQAPairs(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	qs, err := s.ListQuestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, qs)

	byJob, err := s.ListQAPairsByJob(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, byJob, 2)
	assert.Equal(t, "first", byJob[0].Question)
	assert.Equal(t, "A first", byJob[0].Answer)
	assert.Equal(t, "https://example.com/j1", byJob[0].SourceURL)
	assert.True(t, base.Equal(byJob[0].Timestamp))

	none, err := s.ListQAPairsByJob(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testPaginate(t *testing.T, s service.Store) {
	ctx := context.Background()
	for i, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		_, err := s.InsertQAPairs(ctx, []models.QAPair{pair("j", q, base.Add(time.Duration(i)*time.Second))})
		require.NoError(t, err)
	}

	total, items, err := s.PaginateQA(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, "q4", items[0].Question)
	assert.Equal(t, "q3", items[1].Question)

	total, items, err = s.PaginateQA(ctx, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, items)
}

func testStats(t *testing.T, s service.Store) {
	ctx := context.Background()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.TotalJobs)
	assert.Equal(t, "0%", st.SuccessRate)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.InsertJob(ctx, newJob(id, "https://example.com/"+id, base)))
	}
	finish(t, s, "a", models.JobStatusCompleted, base)
	finish(t, s, "b", models.JobStatusFailed, base)
	_, err = s.InsertQAPairs(ctx, []models.QAPair{pair("a", "q", base)})
	require.NoError(t, err)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalQA)
	assert.Equal(t, 3, st.TotalJobs)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.UniqueURLs)
	assert.Equal(t, "33.3%", st.SuccessRate)
}

func testDeleteTerminal(t *testing.T, s service.Store) {
	ctx := context.Background()
	old := base.Add(-48 * time.Hour)

	require.NoError(t, s.InsertJob(ctx, newJob("old-done", "https://example.com/1", old)))
	require.NoError(t, s.InsertJob(ctx, newJob("old-failed", "https://example.com/2", old)))
	require.NoError(t, s.InsertJob(ctx, newJob("old-queued", "https://example.com/3", old)))
	require.NoError(t, s.InsertJob(ctx, newJob("new-done", "https://example.com/4", base)))
	finish(t, s, "old-done", models.JobStatusCompleted, old)
	finish(t, s, "old-failed", models.JobStatusFailed, old)
	finish(t, s, "new-done", models.JobStatusCompleted, base)

	_, err := s.InsertQAPairs(ctx, []models.QAPair{pair("old-done", "kept without cascade", old)})
	require.NoError(t, err)

	n, err := s.DeleteTerminalJobsBefore(ctx, base.Add(-time.Hour), false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[string]bool{"old-done": false, "old-failed": false, "old-queued": true, "new-done": true} {
		got, err := s.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got != nil, id)
	}

	qs, err := s.ListQuestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept without cascade"}, qs)

	_, err = s.InsertQAPairs(ctx, []models.QAPair{pair("new-done", "removed with cascade", base)})
	require.NoError(t, err)
	n, err = s.DeleteTerminalJobsBefore(ctx, base.Add(time.Hour), true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	qs, err = s.ListQuestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept without cascade"}, qs)
}
