package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("job queue is closed")
)

// WorkItem is one job waiting to be processed.
type WorkItem struct {
	JobID string
	URL   string
}

// Queue is a bounded FIFO of work items. Enqueue never blocks.
type Queue struct {
	mu     sync.RWMutex
	items  chan WorkItem
	closed bool
}

// NewQueue creates a queue holding at most size items.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{items: make(chan WorkItem, size)}
}

// Enqueue adds item, or returns ErrQueueFull / ErrQueueClosed.
func (q *Queue) Enqueue(item WorkItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of buffered items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Items is the receive side consumed by workers. It is closed by Close
// after which the remaining items can still be drained.
func (q *Queue) Items() <-chan WorkItem {
	return q.items
}

// Close stops accepting items. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.items)
	}
}

// Recover re-enqueues jobs left queued by a previous run, oldest first, and
// warns about jobs stuck in processing. Returns how many were enqueued.
func (q *Queue) Recover(ctx context.Context, jobs *JobManager, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	stuck, err := jobs.ListByStatus(ctx, models.JobStatusProcessing)
	if err != nil {
		return 0, err
	}
	for _, j := range stuck {
		logger.Warn("job stuck in processing from a previous run", "job_id", j.ID, "url", j.URL)
	}

	queued, err := jobs.ListByStatus(ctx, models.JobStatusQueued)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, j := range queued {
		if err := q.Enqueue(WorkItem{JobID: j.ID, URL: j.URL}); err != nil {
			logger.Warn("could not re-enqueue queued jobs", "remaining", len(queued)-n, "error", err)
			break
		}
		n++
	}
	if n > 0 {
		logger.Info("re-enqueued queued jobs", "count", n)
	}
	return n, nil
}
