// Package report persists acquisition run outcomes so past runs can be
// inspected after the process exits.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Slice statuses.
const (
	StatusDownloaded = "downloaded"
	StatusNoScene    = "no_scene"
	StatusFailed     = "failed"
)

// Run is one acquisition invocation for one project.
type Run struct {
	ID          string     `json:"id"`
	ProjectCode string     `json:"project_code"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// SliceRecord is the outcome for one temporal slice within a run.
type SliceRecord struct {
	RunID  string `json:"-"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Path   string `json:"path,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	project_code TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT
);
CREATE TABLE IF NOT EXISTS slices (
	run_id TEXT NOT NULL REFERENCES runs(id),
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_slices_run ON slices(run_id);
`

// Store wraps the report database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the report database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report database %s: %w", path, err)
	}
	// modernc's driver misbehaves with concurrent writers on one file
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply report schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records the beginning of an acquisition run and returns its ID.
func (s *Store) StartRun(ctx context.Context, projectCode string) (Run, error) {
	run := Run{
		ID:          uuid.NewString(),
		ProjectCode: projectCode,
		StartedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, project_code, started_at) VALUES (?, ?, ?)`,
		run.ID, run.ProjectCode, run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Run{}, fmt.Errorf("failed to record run start: %w", err)
	}
	return run, nil
}

// RecordSlice stores the outcome of one slice.
func (s *Store) RecordSlice(ctx context.Context, rec SliceRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slices (run_id, year, month, status, detail, path) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Year, rec.Month, rec.Status, rec.Detail, rec.Path)
	if err != nil {
		return fmt.Errorf("failed to record slice outcome: %w", err)
	}
	return nil
}

// FinishRun stamps the run's completion time.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first, optionally filtered by project code.
func (s *Store) ListRuns(ctx context.Context, projectCode string) ([]Run, error) {
	query := `SELECT id, project_code, started_at, finished_at FROM runs`
	args := []any{}
	if projectCode != "" {
		query += ` WHERE project_code = ?`
		args = append(args, projectCode)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var started string
		var finished sql.NullString
		if err := rows.Scan(&run.ID, &run.ProjectCode, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
		}
		if finished.Valid {
			t, err := time.Parse(time.RFC3339Nano, finished.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
			}
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunSlices returns the slice outcomes of one run in chronological slice order.
func (s *Store) RunSlices(ctx context.Context, runID string) ([]SliceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, year, month, status, detail, path FROM slices
		 WHERE run_id = ? ORDER BY year, month`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run slices: %w", err)
	}
	defer rows.Close()

	records := []SliceRecord{}
	for rows.Next() {
		var rec SliceRecord
		if err := rows.Scan(&rec.RunID, &rec.Year, &rec.Month, &rec.Status, &rec.Detail, &rec.Path); err != nil {
			return nil, fmt.Errorf("failed to scan slice row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
