package sqldb

import "fmt"

// Timestamps are stored as Unix microseconds so both drivers round-trip
// them identically.
func schema(driver string) []string {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == DriverPostgres {
		pk = "BIGSERIAL PRIMARY KEY"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			url          TEXT NOT NULL UNIQUE,
			status       TEXT NOT NULL CHECK (status IN ('queued', 'processing', 'completed', 'failed')),
			qa_count     INTEGER NOT NULL DEFAULT 0,
			error        TEXT,
			created_at   BIGINT NOT NULL,
			completed_at BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS qa_pairs (
			id         %s,
			job_id     TEXT NOT NULL,
			question   TEXT NOT NULL,
			answer     TEXT NOT NULL,
			source_url TEXT NOT NULL,
			timestamp  BIGINT NOT NULL
		)`, pk),
		`CREATE INDEX IF NOT EXISTS idx_qa_pairs_job ON qa_pairs (job_id)`,
	}
}
