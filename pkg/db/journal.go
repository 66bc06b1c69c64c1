package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// JobStatus represents the processing status of a job record.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// ErrNotFound is returned when no job matches the requested key.
var ErrNotFound = errors.New("job not found in journal")

// JobRecord represents a row in the jobs table.
type JobRecord struct {
	ID           int64
	Key          string
	Fingerprint  string
	OutputDir    string
	Status       JobStatus
	ExitCode     int
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}

// Journal wraps a SQLite database recording which jobs ran and how they
// ended, so an interrupted batch can be resumed.
type Journal struct {
	db *sql.DB
}

// InitJournal opens (or creates) the SQLite database and initializes the schema.
func InitJournal(dbPath string) (*Journal, error) {
	// Pragmas go in the DSN so they apply to every pooled connection; workers
	// write concurrently and each connection needs the busy timeout.
	dsn, err := sqliteDSN(dbPath, url.Values{
		"_pragma": {"journal_mode=WAL", "synchronous=NORMAL", "busy_timeout=5000"},
	})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		job_key       TEXT NOT NULL UNIQUE,
		fingerprint   TEXT NOT NULL,
		output_dir    TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending',
		exit_code     INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}

// Begin marks a job as running, creating its record on first sight and
// refreshing fingerprint and output dir on reruns. Returns the row ID.
func (j *Journal) Begin(key, fingerprint, outputDir string) (int64, error) {
	now := timestamp()
	tx, err := j.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO jobs (job_key, fingerprint, output_dir, status, created_at, updated_at)
		VALUES (?, ?, ?, 'running', ?, ?)
		ON CONFLICT(job_key) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			output_dir = excluded.output_dir,
			status = 'running',
			exit_code = 0,
			error_message = '',
			updated_at = excluded.updated_at`,
		key, fingerprint, outputDir, now, now,
	); err != nil {
		return 0, fmt.Errorf("upsert job: %w", err)
	}

	var id int64
	if err := tx.QueryRow(`SELECT id FROM jobs WHERE job_key = ?`, key).Scan(&id); err != nil {
		return 0, fmt.Errorf("select job id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

// Finish records the outcome of a job. A job completes when it exited with
// code zero and no error; anything else marks it failed.
func (j *Journal) Finish(id int64, exitCode int, runErr error) error {
	status := StatusCompleted
	errMsg := ""
	if runErr != nil {
		status = StatusFailed
		errMsg = runErr.Error()
	} else if exitCode != 0 {
		status = StatusFailed
		errMsg = fmt.Sprintf("exit code %d", exitCode)
	}

	_, err := j.db.Exec(
		`UPDATE jobs SET status = ?, exit_code = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), exitCode, errMsg, timestamp(), id,
	)
	return err
}

// IsCompleted reports whether key completed with the same fingerprint.
func (j *Journal) IsCompleted(key, fingerprint string) (bool, error) {
	var count int
	err := j.db.QueryRow(
		`SELECT COUNT(*) FROM jobs WHERE job_key = ? AND fingerprint = ? AND status = 'completed'`,
		key, fingerprint,
	).Scan(&count)
	return count > 0, err
}

// Get returns the record for key, or ErrNotFound.
func (j *Journal) Get(key string) (*JobRecord, error) {
	row := j.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE job_key = ?`, key)
	r := &JobRecord{}
	var status string
	err := row.Scan(&r.ID, &r.Key, &r.Fingerprint, &r.OutputDir, &status,
		&r.ExitCode, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = JobStatus(status)
	return r, nil
}

// Failed returns all failed jobs ordered by key.
func (j *Journal) Failed() ([]*JobRecord, error) {
	rows, err := j.db.Query(`SELECT ` + jobColumns + ` FROM jobs WHERE status = 'failed' ORDER BY job_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ResetFailed changes all 'failed' and stale 'running' records back to
// 'pending'. Returns count affected.
func (j *Journal) ResetFailed() (int64, error) {
	res, err := j.db.Exec(
		`UPDATE jobs SET status = 'pending', error_message = '', updated_at = ? WHERE status IN ('failed', 'running')`,
		timestamp(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats returns a map of status → count for all records.
func (j *Journal) Stats() (map[JobStatus]int, error) {
	rows, err := j.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[JobStatus(status)] = count
	}
	return stats, rows.Err()
}

// DropAll deletes all records from the jobs table.
func (j *Journal) DropAll() error {
	_, err := j.db.Exec(`DELETE FROM jobs`)
	return err
}

// --- helpers ---

const jobColumns = `id, job_key, fingerprint, output_dir, status, exit_code,
	error_message, created_at, updated_at`

func scanRecords(rows *sql.Rows) ([]*JobRecord, error) {
	var records []*JobRecord
	for rows.Next() {
		r := &JobRecord{}
		var status string
		if err := rows.Scan(
			&r.ID, &r.Key, &r.Fingerprint, &r.OutputDir, &status,
			&r.ExitCode, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		r.Status = JobStatus(status)
		records = append(records, r)
	}
	return records, rows.Err()
}

// sqliteDSN builds a file: URI for path. The path is made absolute and
// percent-escaped so characters such as '?' and '#' in directory names are
// not read as the start of the query or fragment.
func sqliteDSN(path string, query url.Values) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: query.Encode()}
	return u.String(), nil
}
