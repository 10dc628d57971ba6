package service

import (
	"context"
	"time"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

// Store is the persistence contract the services depend on. internal/db
// (SurrealDB) and internal/sqldb (SQLite, PostgreSQL) implement it.
//
// Lookups return (nil, nil) when the row is absent. UpdateJob returns
// models.ErrNotFound for an unknown id. InsertJob returns
// models.ErrJobExists when the URL is already stored.
type Store interface {
	FindJobByURL(ctx context.Context, url string) (*models.Job, error)
	InsertJob(ctx context.Context, job *models.Job) error
	UpdateJob(ctx context.Context, id string, u models.JobUpdate) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListCompletedURLs(ctx context.Context) ([]string, error)
	// ListJobsByStatus returns jobs oldest first.
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error)

	// ListQuestions returns every stored question in insertion order.
	ListQuestions(ctx context.Context) ([]string, error)
	InsertQAPairs(ctx context.Context, pairs []models.QAPair) (int, error)
	ListQAPairsByJob(ctx context.Context, jobID string) ([]models.QAPair, error)
	// PaginateQA returns the total count and one page, newest first.
	PaginateQA(ctx context.Context, limit, offset int) (int, []models.QAPair, error)
	// Stats fills every field except QueueSize.
	Stats(ctx context.Context) (models.Stats, error)

	// DeleteTerminalJobsBefore removes completed and failed jobs created
	// before cutoff, and their Q&A pairs when cascade is set.
	DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time, cascade bool) (int, error)

	Close(ctx context.Context) error
}
