package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

func newTestJobManager(store Store) *JobManager {
	return NewJobManager(store, testLogger(), false)
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestJobManager(newMemStore())

	job, created, err := m.Create(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Nil(t, job.CompletedAt)
	assert.NotEmpty(t, job.ID)

	started, err := m.Start(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, started.Status)

	done, err := m.Complete(ctx, job.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 7, done.QACount)
	assert.Nil(t, done.Error)
	require.NotNil(t, done.CompletedAt)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, done, got)
}

func TestCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestJobManager(newMemStore())

	first, _, err := m.Create(ctx, "https://example.com/a")
	require.NoError(t, err)

	for _, finish := range []func(id string){
		func(id string) {},
		func(id string) { _, _ = m.Start(ctx, id) },
		func(id string) { _, _ = m.Complete(ctx, id, 1) },
	} {
		finish(first.ID)
		again, created, err := m.Create(ctx, "https://example.com/a")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestCreateAfterFailureReturnsFailedJob(t *testing.T) {
	ctx := context.Background()
	m := newTestJobManager(newMemStore())

	job, _, err := m.Create(ctx, "https://example.com/a")
	require.NoError(t, err)
	_, err = m.Start(ctx, job.ID)
	require.NoError(t, err)
	_, err = m.Fail(ctx, job.ID, "boom")
	require.NoError(t, err)

	again, created, err := m.Create(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.JobStatusFailed, again.Status)
}

func TestCreateLosesRace(t *testing.T) {
	store := newMemStore()
	store.insertErr = models.ErrJobExists
	m := newTestJobManager(store)

	job, created, err := m.Create(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "winner", job.ID)
}

func TestCreateConcurrentSameURL(t *testing.T) {
	m := newTestJobManager(newMemStore())

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, _, err := m.Create(context.Background(), "https://example.com/same")
			if assert.NoError(t, err) {
				ids[i] = job.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	m := newTestJobManager(newMemStore())

	job, _, err := m.Create(ctx, "https://example.com/a")
	require.NoError(t, err)

	_, err = m.Complete(ctx, job.ID, 1)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = m.Fail(ctx, job.ID, "not started")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = m.Start(ctx, job.ID)
	require.NoError(t, err)
	_, err = m.Start(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = m.Complete(ctx, job.ID, 0)
	require.NoError(t, err)
	_, err = m.Fail(ctx, job.ID, "too late")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestFailTruncatesMessage(t *testing.T) {
	ctx := context.Background()
	m := newTestJobManager(newMemStore())

	job, _, err := m.Create(ctx, "https://example.com/a")
	require.NoError(t, err)
	_, err = m.Start(ctx, job.ID)
	require.NoError(t, err)

	failed, err := m.Fail(ctx, job.ID, strings.Repeat("é", MaxErrorLen+50))
	require.NoError(t, err)
	require.NotNil(t, failed.Error)
	assert.Len(t, []rune(*failed.Error), MaxErrorLen)
	assert.Equal(t, 0, failed.QACount)
	assert.NotNil(t, failed.CompletedAt)
}

func TestGetUnknownJob(t *testing.T) {
	m := newTestJobManager(newMemStore())

	_, err := m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = m.Start(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()

	for _, cascade := range []bool{false, true} {
		store := newMemStore()
		m := NewJobManager(store, testLogger(), cascade)

		clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		m.now = func() time.Time { return clock }

		old, _, err := m.Create(ctx, "https://example.com/old")
		require.NoError(t, err)
		_, err = m.Start(ctx, old.ID)
		require.NoError(t, err)
		_, err = m.Complete(ctx, old.ID, 1)
		require.NoError(t, err)
		_, err = store.InsertQAPairs(ctx, []models.QAPair{{JobID: old.ID, Question: "q"}})
		require.NoError(t, err)

		stale, _, err := m.Create(ctx, "https://example.com/stale-queued")
		require.NoError(t, err)

		clock = clock.Add(48 * time.Hour)
		recent, _, err := m.Create(ctx, "https://example.com/recent")
		require.NoError(t, err)
		_, err = m.Start(ctx, recent.ID)
		require.NoError(t, err)
		_, err = m.Fail(ctx, recent.ID, "x")
		require.NoError(t, err)

		n, err := m.Cleanup(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = m.Get(ctx, old.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = m.Get(ctx, stale.ID)
		assert.NoError(t, err, "non-terminal jobs are never removed")
		_, err = m.Get(ctx, recent.ID)
		assert.NoError(t, err)

		qs, err := store.ListQuestions(ctx)
		require.NoError(t, err)
		if cascade {
			assert.Empty(t, qs)
		} else {
			assert.Equal(t, []string{"q"}, qs)
		}
	}
}

func TestCleanupRejectsNegativeAge(t *testing.T) {
	m := newTestJobManager(newMemStore())
	_, err := m.Cleanup(context.Background(), -time.Hour)
	assert.Error(t, err)
}
