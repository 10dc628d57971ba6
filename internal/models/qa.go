package models

import (
	"fmt"
	"time"
)

// AnswerNotProvided is stored when extraction found a question without any
// supporting answer text.
const AnswerNotProvided = "Answer not provided"

// QAPair is a persisted question/answer extracted from an article.
// Pairs are never mutated after insertion.
type QAPair struct {
	ID        int64     `json:"-" db:"id"`
	JobID     string    `json:"job_id,omitempty" db:"job_id"`
	Question  string    `json:"question" db:"question"`
	Answer    string    `json:"answer" db:"answer"`
	SourceURL string    `json:"source_url" db:"source_url"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// QAPage is one page of the global Q&A listing, newest first.
type QAPage struct {
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
	Items  []QAPair `json:"items"`
}

// Stats aggregates counts across jobs and Q&A pairs.
type Stats struct {
	TotalQA     int    `json:"total_qa_pairs"`
	TotalJobs   int    `json:"total_jobs"`
	Completed   int    `json:"completed_jobs"`
	Failed      int    `json:"failed_jobs"`
	UniqueURLs  int    `json:"unique_articles_processed"`
	SuccessRate string `json:"success_rate"`
	QueueSize   int    `json:"queue_size"`
}

// SuccessRate formats completed/total as a percentage with one decimal.
// Returns "0%" when there are no jobs.
func SuccessRate(completed, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(completed)/float64(total)*100)
}
