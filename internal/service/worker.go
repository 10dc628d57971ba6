package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Processor handles one work item. *Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, item WorkItem) error
}

// Worker consumes the queue one item at a time.
type Worker struct {
	id     int
	queue  *Queue
	proc   Processor
	jobs   *JobManager
	logger *slog.Logger
}

// NewWorker creates a worker. jobs is used to fail a job whose processing
// panicked.
func NewWorker(id int, q *Queue, proc Processor, jobs *JobManager, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{id: id, queue: q, proc: proc, jobs: jobs, logger: logger.With("worker", id)}
}

// Run processes items until the queue is closed and drained, or ctx is
// cancelled. An item already started always runs to completion.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Debug("worker started")
	defer w.logger.Debug("worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case item, ok := <-w.queue.Items():
			if !ok {
				return
			}
			w.handle(context.WithoutCancel(ctx), item)
		}
	}
}

func (w *Worker) handle(ctx context.Context, item WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while processing job",
				"job_id", item.JobID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			if _, err := w.jobs.Fail(ctx, item.JobID, fmt.Sprintf("internal error: %v", r)); err != nil {
				w.logger.Warn("failed to mark panicked job as failed", "job_id", item.JobID, "error", err)
			}
		}
	}()

	if err := w.proc.Process(ctx, item); err != nil {
		w.logger.Error("job processing error", "job_id", item.JobID, "error", err)
	}
}
