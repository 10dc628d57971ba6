// Package models defines data structures shared by the scraping pipeline,
// the dedup engine and the storage backends.
package models

import "time"

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job is one scrape-extract-persist unit of work for a single URL.
// CompletedAt is set iff Status is terminal.
type Job struct {
	ID          string     `json:"id" db:"id"`
	URL         string     `json:"url" db:"url"`
	Status      JobStatus  `json:"status" db:"status"`
	QACount     int        `json:"qa_count" db:"qa_count"`
	Error       *string    `json:"error" db:"error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// JobUpdate carries the mutable job fields. Nil fields are left untouched.
type JobUpdate struct {
	Status      *JobStatus
	QACount     *int
	Error       *string
	CompletedAt *time.Time
}

// Empty reports whether the update changes nothing.
func (u JobUpdate) Empty() bool {
	return u.Status == nil && u.QACount == nil && u.Error == nil && u.CompletedAt == nil
}

// Apply copies the set fields of u onto job.
func (u JobUpdate) Apply(job *Job) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.QACount != nil {
		job.QACount = *u.QACount
	}
	if u.Error != nil {
		msg := *u.Error
		job.Error = &msg
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		job.CompletedAt = &t
	}
}
