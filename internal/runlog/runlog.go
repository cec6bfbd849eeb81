// Package runlog records what each partition attempt did: a local SQLite
// log for operator inspection and a per-partition JSON artifact published
// next to the output for post-hoc audit.
package runlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/impresso/consolidator/internal/partition"
)

// Status values for partition runs.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// Entry is one row of the partition run log.
type Entry struct {
	ID                string     `json:"id"`
	Provider          string     `json:"provider"`
	Newspaper         string     `json:"newspaper"`
	Year              int        `json:"year"`
	Version           string     `json:"version"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Issues            int        `json:"issues"`
	ItemsConsolidated int        `json:"items_consolidated"`
	ImagesSkipped     int        `json:"images_skipped"`
	Error             string     `json:"error,omitempty"`
}

// Counts carries the outcome of a successful partition run.
type Counts struct {
	Issues            int
	ItemsConsolidated int
	ImagesSkipped     int
}

// Log provides read/write access to the local run log.
type Log struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite run log at path and configures WAL
// mode so concurrent worker goroutines can write safely.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	return &Log{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS partition_runs (
	id           TEXT PRIMARY KEY,
	provider     TEXT NOT NULL,
	newspaper    TEXT NOT NULL,
	year         INTEGER NOT NULL,
	version      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	issues       INTEGER NOT NULL DEFAULT 0,
	items        INTEGER NOT NULL DEFAULT 0,
	images       INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_partition_runs_status ON partition_runs(status);
CREATE INDEX IF NOT EXISTS idx_partition_runs_partition
	ON partition_runs(provider, newspaper, year, version);
`

// Migrate creates the run log schema if missing.
func (l *Log) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "runlog: migrate")
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Start records the beginning of a partition run and returns its id.
func (l *Log) Start(ctx context.Context, p partition.Partition, version string) (string, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO partition_runs (id, provider, newspaper, year, version, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.Provider, p.Newspaper, p.Year, version, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start %s", p)
	}
	return id, nil
}

// Complete marks a run as successfully published.
func (l *Log) Complete(ctx context.Context, runID string, counts Counts) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE partition_runs
		 SET status = ?, completed_at = ?, issues = ?, items = ?, images = ?
		 WHERE id = ?`,
		StatusComplete, time.Now().UTC(),
		counts.Issues, counts.ItemsConsolidated, counts.ImagesSkipped, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// Fail marks a run as failed with its error message.
func (l *Log) Fail(ctx context.Context, runID string, errMsg string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE partition_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		StatusFailed, time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// Skip records a partition that was already stamped complete.
func (l *Log) Skip(ctx context.Context, p partition.Partition, version string) error {
	now := time.Now().UTC()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO partition_runs (id, provider, newspaper, year, version, status, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), p.Provider, p.Newspaper, p.Year, version, StatusSkipped, now, now,
	)
	return eris.Wrapf(err, "runlog: skip %s", p)
}

// List returns the most recent runs, newest first. A zero limit defaults
// to 100; an empty status matches all.
func (l *Log) List(ctx context.Context, status string, limit int) ([]Entry, error) {
	query := `SELECT id, provider, newspaper, year, version, status, started_at, completed_at, issues, items, images, error
		 FROM partition_runs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var completedAt sql.NullTime
		var errStr sql.NullString
		if err := rows.Scan(&e.ID, &e.Provider, &e.Newspaper, &e.Year, &e.Version,
			&e.Status, &e.StartedAt, &completedAt,
			&e.Issues, &e.ItemsConsolidated, &e.ImagesSkipped, &errStr); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		if errStr.Valid {
			e.Error = errStr.String
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "runlog: iterate")
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "runlog: rows affected")
	}
	if n == 0 {
		return eris.Errorf("runlog: run not found: %s", runID)
	}
	return nil
}
