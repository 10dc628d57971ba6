package models

import (
	"testing"
	"time"
)

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		want      string
	}{
		{"no jobs", 0, 0, "0%"},
		{"all completed", 4, 4, "100.0%"},
		{"one third", 1, 3, "33.3%"},
		{"none completed", 0, 5, "0.0%"},
		{"two thirds rounds", 2, 3, "66.7%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuccessRate(tt.completed, tt.total); got != tt.want {
				t.Errorf("SuccessRate(%d, %d) = %q, want %q", tt.completed, tt.total, got, tt.want)
			}
		})
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusQueued, false},
		{JobStatusProcessing, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestJobUpdateApply(t *testing.T) {
	job := Job{ID: "j1", URL: "https://example.com", Status: JobStatusProcessing}

	status := JobStatusFailed
	msg := "timeout"
	now := time.Now()
	JobUpdate{Status: &status, Error: &msg, CompletedAt: &now}.Apply(&job)

	if job.Status != JobStatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if job.Error == nil || *job.Error != "timeout" {
		t.Errorf("error = %v, want timeout", job.Error)
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(now) {
		t.Errorf("completed_at = %v, want %v", job.CompletedAt, now)
	}
	if job.QACount != 0 {
		t.Errorf("qa_count = %d, want 0 (untouched)", job.QACount)
	}

	if !(JobUpdate{}).Empty() {
		t.Error("zero JobUpdate should be empty")
	}
}
