// Package service provides the job lifecycle, Q&A persistence with
// deduplication, and the background scrape pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

// MaxErrorLen caps the stored failure message, in runes.
const MaxErrorLen = 500

// JobManager owns job state transitions:
//
//	queued -> processing -> completed | failed
//
// Terminal jobs never change again.
type JobManager struct {
	store   Store
	logger  *slog.Logger
	cascade bool
	locks   keyedMutex
	now     func() time.Time
}

// NewJobManager creates a job manager. cascade controls whether Cleanup
// also removes the Q&A pairs of deleted jobs.
func NewJobManager(store Store, logger *slog.Logger, cascade bool) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobManager{
		store:   store,
		logger:  logger,
		cascade: cascade,
		locks:   keyedMutex{locks: make(map[string]*keyLock)},
		now:     time.Now,
	}
}

func (m *JobManager) timestamp() time.Time {
	return m.now().UTC().Truncate(time.Microsecond)
}

// Create returns the job for url, inserting a queued one if none exists.
// created reports whether this call inserted it. A job for the same URL is
// returned unchanged whatever its status.
func (m *JobManager) Create(ctx context.Context, url string) (job *models.Job, created bool, err error) {
	unlock := m.locks.lock("url:" + url)
	defer unlock()

	existing, err := m.store.FindJobByURL(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("find job by url: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	job = &models.Job{
		ID:        uuid.NewString(),
		URL:       url,
		Status:    models.JobStatusQueued,
		CreatedAt: m.timestamp(),
	}

	if err := m.store.InsertJob(ctx, job); err != nil {
		if !errors.Is(err, models.ErrJobExists) {
			return nil, false, fmt.Errorf("insert job: %w", err)
		}
		// Another process won the race on the unique URL.
		existing, findErr := m.store.FindJobByURL(ctx, url)
		if findErr != nil {
			return nil, false, fmt.Errorf("find job by url: %w", findErr)
		}
		if existing == nil {
			return nil, false, fmt.Errorf("insert job: %w", err)
		}
		return existing, false, nil
	}

	m.logger.Info("job created", "job_id", job.ID, "url", url)
	return job, true, nil
}

// Start moves a queued job to processing.
func (m *JobManager) Start(ctx context.Context, id string) (*models.Job, error) {
	status := models.JobStatusProcessing
	return m.transition(ctx, id, models.JobStatusQueued, models.JobUpdate{Status: &status})
}

// Complete moves a processing job to completed with its final Q&A count.
func (m *JobManager) Complete(ctx context.Context, id string, qaCount int) (*models.Job, error) {
	status := models.JobStatusCompleted
	now := m.timestamp()
	job, err := m.transition(ctx, id, models.JobStatusProcessing, models.JobUpdate{
		Status:      &status,
		QACount:     &qaCount,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("job completed", "job_id", id, "qa_count", qaCount)
	return job, nil
}

// Fail moves a processing job to failed. msg is truncated to MaxErrorLen
// runes; qa_count keeps its last value.
func (m *JobManager) Fail(ctx context.Context, id, msg string) (*models.Job, error) {
	status := models.JobStatusFailed
	now := m.timestamp()
	msg = truncateRunes(msg, MaxErrorLen)
	job, err := m.transition(ctx, id, models.JobStatusProcessing, models.JobUpdate{
		Status:      &status,
		Error:       &msg,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Error("job failed", "job_id", id, "error", msg)
	return job, nil
}

func (m *JobManager) transition(ctx context.Context, id string, from models.JobStatus, u models.JobUpdate) (*models.Job, error) {
	unlock := m.locks.lock("job:" + id)
	defer unlock()

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if job.Status != from {
		return nil, fmt.Errorf("%w: job %s is %s, want %s", models.ErrInvalidTransition, id, job.Status, from)
	}

	if err := m.store.UpdateJob(ctx, id, u); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	u.Apply(job)
	return job, nil
}

// Get returns the job or models.ErrNotFound.
func (m *JobManager) Get(ctx context.Context, id string) (*models.Job, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return job, nil
}

// CompletedURLs returns the URLs of completed jobs.
func (m *JobManager) CompletedURLs(ctx context.Context) ([]string, error) {
	urls, err := m.store.ListCompletedURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list completed urls: %w", err)
	}
	return urls, nil
}

// ListByStatus returns jobs in the given status, oldest first.
func (m *JobManager) ListByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	jobs, err := m.store.ListJobsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", status, err)
	}
	return jobs, nil
}

// Cleanup deletes terminal jobs created more than olderThan ago and returns
// how many were removed. Queued and processing jobs are never touched.
func (m *JobManager) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan < 0 {
		return 0, fmt.Errorf("cleanup age must not be negative, got %s", olderThan)
	}

	cutoff := m.timestamp().Add(-olderThan)
	n, err := m.store.DeleteTerminalJobsBefore(ctx, cutoff, m.cascade)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}

	m.logger.Info("job cleanup finished", "deleted", n, "older_than", olderThan.String(), "cascade", m.cascade)
	return n, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// keyedMutex serializes work per key. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
