package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

// Datetimes are sent as RFC 3339 strings and cast in SurrealQL.
const timeLayout = time.RFC3339Nano

type jobRow struct {
	ID          surrealmodels.RecordID `json:"id"`
	URL         string                 `json:"url"`
	Status      string                 `json:"status"`
	QACount     int                    `json:"qa_count"`
	Error       *string                `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

func (r jobRow) toModel() (models.Job, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.Job{}, err
	}
	job := models.Job{
		ID:        id,
		URL:       r.URL,
		Status:    models.JobStatus(r.Status),
		QACount:   r.QACount,
		Error:     r.Error,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		job.CompletedAt = &t
	}
	return job, nil
}

type qaRow struct {
	JobID     string    `json:"job_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	SourceURL string    `json:"source_url"`
	Timestamp time.Time `json:"timestamp"`
}

func (r qaRow) toModel() models.QAPair {
	return models.QAPair{
		JobID:     r.JobID,
		Question:  r.Question,
		Answer:    r.Answer,
		SourceURL: r.SourceURL,
		Timestamp: r.Timestamp.UTC(),
	}
}

type countRow struct {
	Count int `json:"count"`
}

func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected record id type %T", id.ID)
	}
	return s, nil
}

func jobsFromRows(rows []jobRow) ([]models.Job, error) {
	jobs := make([]models.Job, 0, len(rows))
	for _, r := range rows {
		j, err := r.toModel()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (c *Client) firstJob(ctx context.Context, sql string, vars map[string]any) (*models.Job, error) {
	rows, err := query[[]jobRow](ctx, c, sql, vars)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	job, err := rows[0].toModel()
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindJobByURL returns the job for url, or nil.
func (c *Client) FindJobByURL(ctx context.Context, url string) (*models.Job, error) {
	job, err := c.firstJob(ctx, `SELECT * FROM job WHERE url = $url LIMIT 1`, map[string]any{"url": url})
	if err != nil {
		return nil, fmt.Errorf("find job by url: %w", err)
	}
	return job, nil
}

// GetJob returns the job with id, or nil.
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := c.firstJob(ctx, `SELECT * FROM type::record("job", $id)`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// InsertJob creates job. The unique url index turns a duplicate into
// models.ErrJobExists.
func (c *Client) InsertJob(ctx context.Context, job *models.Job) error {
	_, err := query[any](ctx, c, `
		CREATE type::record("job", $id) CONTENT {
			url: $url,
			status: $status,
			qa_count: $qa_count,
			created_at: <datetime>$created_at
		}
	`, map[string]any{
		"id":         job.ID,
		"url":        job.URL,
		"status":     string(job.Status),
		"qa_count":   job.QACount,
		"created_at": job.CreatedAt.UTC().Format(timeLayout),
	})
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob applies the set fields of u.
func (c *Client) UpdateJob(ctx context.Context, id string, u models.JobUpdate) error {
	if u.Empty() {
		return nil
	}

	var sets []string
	vars := map[string]any{"id": id}
	if u.Status != nil {
		sets = append(sets, "status = $status")
		vars["status"] = string(*u.Status)
	}
	if u.QACount != nil {
		sets = append(sets, "qa_count = $qa_count")
		vars["qa_count"] = *u.QACount
	}
	if u.Error != nil {
		sets = append(sets, "error = $error")
		vars["error"] = *u.Error
	}
	if u.CompletedAt != nil {
		sets = append(sets, "completed_at = <datetime>$completed_at")
		vars["completed_at"] = u.CompletedAt.UTC().Format(timeLayout)
	}

	sql := fmt.Sprintf(`UPDATE type::record("job", $id) SET %s RETURN AFTER`, strings.Join(sets, ", "))
	rows, err := query[[]jobRow](ctx, c, sql, vars)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListCompletedURLs returns the URLs of completed jobs.
func (c *Client) ListCompletedURLs(ctx context.Context) ([]string, error) {
	urls, err := query[[]string](ctx, c, `SELECT VALUE url FROM job WHERE status = "completed"`, nil)
	if err != nil {
		return nil, fmt.Errorf("list completed urls: %w", err)
	}
	return urls, nil
}

// ListJobsByStatus returns jobs in status, oldest first.
func (c *Client) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	rows, err := query[[]jobRow](ctx, c, `
		SELECT * FROM job WHERE status = $status ORDER BY created_at ASC
	`, map[string]any{"status": string(status)})
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	return jobsFromRows(rows)
}

// ListQuestions returns every stored question in insertion order.
func (c *Client) ListQuestions(ctx context.Context) ([]string, error) {
	rows, err := query[[]struct {
		Question string `json:"question"`
	}](ctx, c, `SELECT question, timestamp, seq FROM qa_pair ORDER BY timestamp ASC, seq ASC`, nil)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	questions := make([]string, len(rows))
	for i, r := range rows {
		questions[i] = r.Question
	}
	return questions, nil
}

// InsertQAPairs stores pairs in one transaction and returns how many were
// written.
func (c *Client) InsertQAPairs(ctx context.Context, pairs []models.QAPair) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}

	rows := make([]map[string]any, len(pairs))
	for i, p := range pairs {
		rows[i] = map[string]any{
			"job_id":     p.JobID,
			"question":   p.Question,
			"answer":     p.Answer,
			"source_url": p.SourceURL,
			"timestamp":  p.Timestamp.UTC().Format(timeLayout),
			"seq":        i,
		}
	}

	_, err := query[any](ctx, c, `
		BEGIN TRANSACTION;
		FOR $p IN $rows {
			CREATE qa_pair CONTENT {
				job_id: $p.job_id,
				question: $p.question,
				answer: $p.answer,
				source_url: $p.source_url,
				timestamp: <datetime>$p.timestamp,
				seq: $p.seq
			};
		};
		COMMIT TRANSACTION;
	`, map[string]any{"rows": rows})
	if err != nil {
		return 0, fmt.Errorf("insert qa pairs: %w", err)
	}
	return len(pairs), nil
}

func qaPairsFromRows(rows []qaRow) []models.QAPair {
	out := make([]models.QAPair, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}

// ListQAPairsByJob returns the pairs of one job in insertion order.
func (c *Client) ListQAPairsByJob(ctx context.Context, jobID string) ([]models.QAPair, error) {
	rows, err := query[[]qaRow](ctx, c, `
		SELECT * FROM qa_pair WHERE job_id = $job_id ORDER BY timestamp ASC, seq ASC
	`, map[string]any{"job_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("list qa pairs by job: %w", err)
	}
	return qaPairsFromRows(rows), nil
}

// PaginateQA returns the total count and one page, newest first.
func (c *Client) PaginateQA(ctx context.Context, limit, offset int) (int, []models.QAPair, error) {
	total, err := c.count(ctx, `SELECT count() AS count FROM qa_pair GROUP ALL`, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("count qa pairs: %w", err)
	}

	rows, err := query[[]qaRow](ctx, c, `
		SELECT * FROM qa_pair ORDER BY timestamp DESC, seq DESC LIMIT $limit START $offset
	`, map[string]any{"limit": limit, "offset": offset})
	if err != nil {
		return 0, nil, fmt.Errorf("paginate qa pairs: %w", err)
	}
	return total, qaPairsFromRows(rows), nil
}

func (c *Client) count(ctx context.Context, sql string, vars map[string]any) (int, error) {
	rows, err := query[[]countRow](ctx, c, sql, vars)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

// Stats counts jobs and pairs. QueueSize is left to the caller.
func (c *Client) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	counts := []struct {
		dst  *int
		sql  string
		vars map[string]any
	}{
		{&st.TotalQA, `SELECT count() AS count FROM qa_pair GROUP ALL`, nil},
		{&st.TotalJobs, `SELECT count() AS count FROM job GROUP ALL`, nil},
		{&st.Completed, `SELECT count() AS count FROM job WHERE status = $s GROUP ALL`, map[string]any{"s": "completed"}},
		{&st.Failed, `SELECT count() AS count FROM job WHERE status = $s GROUP ALL`, map[string]any{"s": "failed"}},
	}
	for _, q := range counts {
		n, err := c.count(ctx, q.sql, q.vars)
		if err != nil {
			return models.Stats{}, fmt.Errorf("stats: %w", err)
		}
		*q.dst = n
	}

	// url is unique, so every completed job is a distinct article.
	st.UniqueURLs = st.Completed
	st.SuccessRate = models.SuccessRate(st.Completed, st.TotalJobs)
	return st, nil
}

// DeleteTerminalJobsBefore removes completed and failed jobs created before
// cutoff, and their pairs when cascade is set.
func (c *Client) DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time, cascade bool) (int, error) {
	rows, err := query[[]jobRow](ctx, c, `
		DELETE job
		WHERE status IN ["completed", "failed"] AND created_at < <datetime>$cutoff
		RETURN BEFORE
	`, map[string]any{"cutoff": cutoff.UTC().Format(timeLayout)})
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", err)
	}

	if cascade && len(rows) > 0 {
		ids := make([]string, 0, len(rows))
		for _, r := range rows {
			id, err := recordIDString(r.ID)
			if err != nil {
				return 0, err
			}
			ids = append(ids, id)
		}
		if _, err := query[any](ctx, c, `DELETE qa_pair WHERE job_id IN $ids`, map[string]any{"ids": ids}); err != nil {
			return 0, fmt.Errorf("delete qa pairs: %w", err)
		}
	}

	return len(rows), nil
}
