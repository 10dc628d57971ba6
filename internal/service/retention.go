package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention removes old terminal jobs on a cron schedule.
type Retention struct {
	jobs   *JobManager
	age    time.Duration
	logger *slog.Logger
	cron   *cron.Cron
}

// NewRetention schedules cleanup of jobs older than age. schedule accepts
// standard five-field cron expressions and descriptors such as "@daily".
func NewRetention(jobs *JobManager, schedule string, age time.Duration, logger *slog.Logger) (*Retention, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retention{jobs: jobs, age: age, logger: logger, cron: cron.New()}

	if _, err := r.cron.AddFunc(schedule, func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.logger.Error("scheduled cleanup failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return r, nil
}

// RunOnce performs one cleanup pass.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	return r.jobs.Cleanup(ctx, r.age)
}

// Start runs the scheduler in the background.
func (r *Retention) Start() {
	r.cron.Start()
	r.logger.Info("cleanup scheduler started", "older_than", r.age.String())
}

// Stop halts the scheduler and waits for a running cleanup to finish or ctx
// to expire.
func (r *Retention) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
