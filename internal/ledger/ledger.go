// Package ledger records every stage execution in an embedded SQLite
// database so runs can be audited with `reelforge history`.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// FileName is the ledger database name inside the workspace root.
const FileName = "ledger.db"

type Status string

const (
	StatusRunning     Status = "running"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Run is one stage execution.
type Run struct {
	ID         int64
	ProjectID  string
	RunID      string
	Stage      string
	Status     Status
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is zero while the stage is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin records a stage as running and returns its row id.
func (s *Store) Begin(ctx context.Context, projectID, runID, stage string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (project_id, run_id, stage, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		projectID, runID, stage, string(StatusRunning), formatTime(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger begin %s: %w", stage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger begin %s: %w", stage, err)
	}
	return id, nil
}

// Finish closes a row opened by Begin. A nil stageErr marks success;
// context cancellation marks the stage interrupted.
func (s *Store) Finish(ctx context.Context, id int64, stageErr error) error {
	status := StatusSucceeded
	msg := ""
	switch {
	case stageErr == nil:
	case errors.Is(stageErr, context.Canceled):
		status, msg = StatusInterrupted, stageErr.Error()
	default:
		status, msg = StatusFailed, stageErr.Error()
	}
	// The stage context may already be cancelled; the row must still close.
	_, err := s.db.ExecContext(context.WithoutCancel(ctx),
		`UPDATE stage_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), msg, formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("ledger finish %d: %w", id, err)
	}
	return nil
}

// MarkInterrupted closes rows a crashed run left running for projectID.
// Call it only while holding the project lock.
func (s *Store) MarkInterrupted(ctx context.Context, projectID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stage_runs SET status = ? WHERE project_id = ? AND status = ?`,
		string(StatusInterrupted), projectID, string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger mark interrupted: %w", err)
	}
	return res.RowsAffected()
}

// List returns the most recent runs first. An empty projectID lists all
// projects; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, projectID string, limit int) ([]Run, error) {
	query := `SELECT id, project_id, run_id, stage, status, error, started_at, finished_at FROM stage_runs`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			status            string
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.RunID, &r.Stage, &status, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		r.Status = Status(status)
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger rows: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
