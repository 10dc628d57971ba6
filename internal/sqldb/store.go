package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/models"
)

type jobRow struct {
	ID          string         `db:"id"`
	URL         string         `db:"url"`
	Status      string         `db:"status"`
	QACount     int            `db:"qa_count"`
	Error       sql.NullString `db:"error"`
	CreatedAt   int64          `db:"created_at"`
	CompletedAt sql.NullInt64  `db:"completed_at"`
}

func (r jobRow) toModel() models.Job {
	job := models.Job{
		ID:        r.ID,
		URL:       r.URL,
		Status:    models.JobStatus(r.Status),
		QACount:   r.QACount,
		CreatedAt: fromMicros(r.CreatedAt),
	}
	if r.Error.Valid {
		msg := r.Error.String
		job.Error = &msg
	}
	if r.CompletedAt.Valid {
		t := fromMicros(r.CompletedAt.Int64)
		job.CompletedAt = &t
	}
	return job
}

type qaRow struct {
	ID        int64  `db:"id"`
	JobID     string `db:"job_id"`
	Question  string `db:"question"`
	Answer    string `db:"answer"`
	SourceURL string `db:"source_url"`
	Timestamp int64  `db:"timestamp"`
}

func (r qaRow) toModel() models.QAPair {
	return models.QAPair{
		ID:        r.ID,
		JobID:     r.JobID,
		Question:  r.Question,
		Answer:    r.Answer,
		SourceURL: r.SourceURL,
		Timestamp: fromMicros(r.Timestamp),
	}
}

func toMicros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

const jobColumns = `id, url, status, qa_count, error, created_at, completed_at`
const qaColumns = `id, job_id, question, answer, source_url, timestamp`

func (s *Store) observe(start time.Time, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	s.metrics.Observe(metrics.OpDBQuery, start, err)
}

func (s *Store) getJob(ctx context.Context, where string, arg any) (*models.Job, error) {
	start := time.Now()
	var row jobRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+jobColumns+` FROM jobs WHERE `+where), arg)
	s.observe(start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job := row.toModel()
	return &job, nil
}

// FindJobByURL returns the job for url, or nil.
func (s *Store) FindJobByURL(ctx context.Context, url string) (*models.Job, error) {
	job, err := s.getJob(ctx, "url = ?", url)
	if err != nil {
		return nil, fmt.Errorf("find job by url: %w", err)
	}
	return job, nil
}

// GetJob returns the job with id, or nil.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.getJob(ctx, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// InsertJob stores job, or returns models.ErrJobExists when its URL is
// already present.
func (s *Store) InsertJob(ctx context.Context, job *models.Job) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO jobs (id, url, status, qa_count, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING`),
		job.ID, job.URL, string(job.Status), job.QACount, toMicros(job.CreatedAt))
	s.observe(start, err)
	if err != nil {
		return fmt.Errorf("insert job: %w", wrapSQLError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("insert job %s: %w", job.URL, models.ErrJobExists)
	}
	return nil
}

// UpdateJob applies the set fields of u.
func (s *Store) UpdateJob(ctx context.Context, id string, u models.JobUpdate) error {
	if u.Empty() {
		return nil
	}

	var sets []string
	var args []any
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.QACount != nil {
		sets = append(sets, "qa_count = ?")
		args = append(args, *u.QACount)
	}
	if u.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *u.Error)
	}
	if u.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, toMicros(*u.CompletedAt))
	}
	args = append(args, id)

	start := time.Now()
	query := s.db.Rebind(`UPDATE jobs SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, args...)
	s.observe(start, err)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListCompletedURLs returns the URLs of completed jobs.
func (s *Store) ListCompletedURLs(ctx context.Context) ([]string, error) {
	start := time.Now()
	var urls []string
	err := s.db.SelectContext(ctx, &urls, s.db.Rebind(`SELECT url FROM jobs WHERE status = ? ORDER BY created_at`), string(models.JobStatusCompleted))
	s.observe(start, err)
	if err != nil {
		return nil, fmt.Errorf("list completed urls: %w", err)
	}
	return urls, nil
}

// ListJobsByStatus returns jobs in status, oldest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	start := time.Now()
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at, id`), string(status))
	s.observe(start, err)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}

	jobs := make([]models.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.toModel()
	}
	return jobs, nil
}

// ListQuestions returns every stored question in insertion order.
func (s *Store) ListQuestions(ctx context.Context) ([]string, error) {
	start := time.Now()
	var qs []string
	err := s.db.SelectContext(ctx, &qs, `SELECT question FROM qa_pairs ORDER BY id`)
	s.observe(start, err)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return qs, nil
}

// InsertQAPairs stores pairs in one transaction and returns how many were
// written.
func (s *Store) InsertQAPairs(ctx context.Context, pairs []models.QAPair) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}

	rows := make([]qaRow, len(pairs))
	for i, p := range pairs {
		rows[i] = qaRow{
			JobID:     p.JobID,
			Question:  p.Question,
			Answer:    p.Answer,
			SourceURL: p.SourceURL,
			Timestamp: toMicros(p.Timestamp),
		}
	}

	start := time.Now()
	n, err := s.insertQARows(ctx, rows)
	s.observe(start, err)
	if err != nil {
		return 0, fmt.Errorf("insert qa pairs: %w", err)
	}
	return n, nil
}

func (s *Store) insertQARows(ctx context.Context, rows []qaRow) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO qa_pairs (job_id, question, answer, source_url, timestamp)
		VALUES (:job_id, :question, :answer, :source_url, :timestamp)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) selectQA(ctx context.Context, query string, args ...any) ([]models.QAPair, error) {
	start := time.Now()
	var rows []qaRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...)
	s.observe(start, err)
	if err != nil {
		return nil, err
	}

	out := make([]models.QAPair, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// ListQAPairsByJob returns the pairs of one job in insertion order.
func (s *Store) ListQAPairsByJob(ctx context.Context, jobID string) ([]models.QAPair, error) {
	pairs, err := s.selectQA(ctx, `SELECT `+qaColumns+` FROM qa_pairs WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list qa pairs by job: %w", err)
	}
	return pairs, nil
}

// PaginateQA returns the total count and one page, newest first.
func (s *Store) PaginateQA(ctx context.Context, limit, offset int) (int, []models.QAPair, error) {
	total, err := s.count(ctx, `SELECT COUNT(*) FROM qa_pairs`)
	if err != nil {
		return 0, nil, fmt.Errorf("count qa pairs: %w", err)
	}

	pairs, err := s.selectQA(ctx,
		`SELECT `+qaColumns+` FROM qa_pairs ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return 0, nil, fmt.Errorf("paginate qa pairs: %w", err)
	}
	return total, pairs, nil
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	start := time.Now()
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...)
	s.observe(start, err)
	return n, err
}

// Stats counts jobs and pairs. QueueSize is left to the caller.
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	var err error

	if st.TotalQA, err = s.count(ctx, `SELECT COUNT(*) FROM qa_pairs`); err != nil {
		return models.Stats{}, fmt.Errorf("stats: %w", err)
	}

	start := time.Now()
	var jobs struct {
		Total     int           `db:"total"`
		Completed sql.NullInt64 `db:"completed"`
		Failed    sql.NullInt64 `db:"failed"`
	}
	err = s.db.GetContext(ctx, &jobs, `
		SELECT COUNT(*) AS total,
		       SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS completed,
		       SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed
		FROM jobs`)
	s.observe(start, err)
	if err != nil {
		return models.Stats{}, fmt.Errorf("stats: %w", err)
	}

	st.TotalJobs = jobs.Total
	st.Completed = int(jobs.Completed.Int64)
	st.Failed = int(jobs.Failed.Int64)
	// url is unique, so every completed job is a distinct article.
	st.UniqueURLs = st.Completed
	st.SuccessRate = models.SuccessRate(st.Completed, st.TotalJobs)
	return st, nil
}

// DeleteTerminalJobsBefore removes completed and failed jobs created before
// cutoff, and their pairs when cascade is set.
func (s *Store) DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time, cascade bool) (int, error) {
	start := time.Now()
	n, err := s.deleteTerminal(ctx, toMicros(cutoff), cascade)
	s.observe(start, err)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	return n, nil
}

func (s *Store) deleteTerminal(ctx context.Context, cutoff int64, cascade bool) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	const where = `status IN ('completed', 'failed') AND created_at < ?`

	if cascade {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM qa_pairs WHERE job_id IN (SELECT id FROM jobs WHERE `+where+`)`), cutoff); err != nil {
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM jobs WHERE `+where), cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}
