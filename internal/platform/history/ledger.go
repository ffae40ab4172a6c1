// Package history keeps a local SQLite ledger of the jobs a worker graded.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dontdude/gograde/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id      TEXT    NOT NULL,
	worker      TEXT    NOT NULL,
	language    TEXT    NOT NULL,
	outcome     TEXT    NOT NULL,
	passed      INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	finished_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_job_id ON jobs(job_id);
`

// Ledger implements domain.Recorder on SQLite.
type Ledger struct {
	db *sql.DB
}

var _ domain.Recorder = (*Ledger)(nil)

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Ledger, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// One writer at a time keeps SQLITE_BUSY out of the grading path.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Record(ctx context.Context, rec domain.JobRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO jobs (job_id, worker, language, outcome, passed, total, duration_ms, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.Worker, rec.Language, rec.Outcome,
		rec.Passed, rec.Total, rec.Duration.Milliseconds(),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", rec.JobID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.JobRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT job_id, worker, language, outcome, passed, total, duration_ms, finished_at
		 FROM jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.JobRecord
	for rows.Next() {
		var (
			rec        domain.JobRecord
			durationMs int64
			finished   string
		)
		if err := rows.Scan(&rec.JobID, &rec.Worker, &rec.Language, &rec.Outcome,
			&rec.Passed, &rec.Total, &durationMs, &finished); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at %q: %w", finished, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
