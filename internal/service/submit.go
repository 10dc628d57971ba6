package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

// SubmitResult is returned for every submitted URL.
type SubmitResult struct {
	JobID   string           `json:"job_id"`
	URL     string           `json:"url"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message"`
	Created bool             `json:"-"`
}

// Submitter creates jobs and hands new ones to the queue.
type Submitter struct {
	jobs       *JobManager
	queue      *Queue
	discoverer *Discoverer
	logger     *slog.Logger
}

// NewSubmitter creates a Submitter. discoverer may be nil, which disables
// SubmitRandom.
func NewSubmitter(jobs *JobManager, q *Queue, d *Discoverer, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{jobs: jobs, queue: q, discoverer: d, logger: logger}
}

// Submit creates the job for url if needed. Only a newly created job is
// enqueued; an existing one is reported as is.
func (s *Submitter) Submit(ctx context.Context, url string) (*SubmitResult, error) {
	job, created, err := s.jobs.Create(ctx, url)
	if err != nil {
		return nil, err
	}

	res := &SubmitResult{JobID: job.ID, URL: job.URL, Status: job.Status, Created: created}
	if !created {
		res.Message = fmt.Sprintf("job already exists with status %s", job.Status)
		return res, nil
	}

	if err := s.queue.Enqueue(WorkItem{JobID: job.ID, URL: job.URL}); err != nil {
		if !errors.Is(err, ErrQueueFull) && !errors.Is(err, ErrQueueClosed) {
			return nil, err
		}
		s.logger.Warn("job stays queued until restart", "job_id", job.ID, "error", err)
		res.Message = "job created, processing deferred: " + err.Error()
		return res, nil
	}

	res.Message = "job queued for processing"
	return res, nil
}

// Discover previews up to count URLs that SubmitRandom would use.
func (s *Submitter) Discover(ctx context.Context, count int) ([]string, error) {
	if s.discoverer == nil {
		return nil, errors.New("discovery is not configured")
	}
	return s.discoverer.Discover(ctx, count)
}

// SubmitRandom discovers up to count articles and submits each of them.
// A URL whose submit fails is logged and skipped.
func (s *Submitter) SubmitRandom(ctx context.Context, count int) ([]SubmitResult, error) {
	urls, err := s.Discover(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	results := make([]SubmitResult, 0, len(urls))
	for _, u := range urls {
		res, err := s.Submit(ctx, u)
		if err != nil {
			s.logger.Warn("random submit failed", "url", u, "error", err)
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}
