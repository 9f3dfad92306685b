package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one batch parse invocation.
type Run struct {
	StartedAt   time.Time
	FinishedAt  *time.Time
	ID          string
	SessionID   string
	Method      string
	Scope       string
	Counts      RunCounts
	Duration    time.Duration
	Concurrency int
}

// RunCounts are the per-outcome totals of a finished run.
type RunCounts struct {
	Total     int
	Matched   int
	Unmatched int
	Errors    int
	Skipped   int
}

// NewRun creates an unsaved run starting now.
func NewRun(sessionID, method, scope string, concurrency int) *Run {
	return &Run{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Method:      method,
		Scope:       scope,
		Concurrency: concurrency,
		StartedAt:   time.Now().UTC(),
	}
}

// StartRun records a run that has begun.
func (s *SQLiteStorage) StartRun(ctx context.Context, run *Run) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, method, scope, concurrency, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Method, run.Scope, run.Concurrency, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// FinishRun stores the outcome totals of a run.
func (s *SQLiteStorage) FinishRun(ctx context.Context, id string, counts RunCounts, elapsed time.Duration) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET total = ?, matched = ?, unmatched = ?, errors = ?, skipped = ?,
			duration_ms = ?, finished_at = ?
		WHERE id = ?`,
		counts.Total, counts.Matched, counts.Unmatched, counts.Errors, counts.Skipped,
		elapsed.Milliseconds(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = `id, COALESCE(session_id, ''), method, scope, concurrency,
	total, matched, unmatched, errors, skipped, duration_ms, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		durationMS int64
		finished   sql.NullTime
	)
	err := row.Scan(&run.ID, &run.SessionID, &run.Method, &run.Scope, &run.Concurrency,
		&run.Counts.Total, &run.Counts.Matched, &run.Counts.Unmatched, &run.Counts.Errors,
		&run.Counts.Skipped, &durationMS, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetRun returns one run by id.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit of zero returns all.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
