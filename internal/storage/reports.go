package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
)

// ErrReportNotFound is returned when a report id is unknown.
var ErrReportNotFound = errors.New("error report not found")

// StoredReport is an error report with its row id.
type StoredReport struct {
	common.ErrorReport
	ID int64
}

// SaveReport stores a bulk-update error report.
func (s *SQLiteStorage) SaveReport(ctx context.Context, report common.ErrorReport) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReport(report); err != nil {
		return err
	}

	failures := report.Errors
	if failures == nil {
		failures = []common.ItemFailure{}
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("failed to marshal report errors: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO error_reports
			(operation_type, pattern_text, total_items, succeeded, failed, total_retries, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.OperationType, report.PatternText, report.TotalItems, report.Succeeded,
		report.Failed, report.TotalRetries, string(data), report.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to save error report: %w", err)
	}

	id, _ := res.LastInsertId()
	slog.Info("Stored error report", "id", id, "pattern", report.PatternText, "failed", report.Failed)
	return nil
}

const reportColumns = `id, operation_type, pattern_text, total_items, succeeded, failed, total_retries, errors, created_at`

func scanReport(row rowScanner) (*StoredReport, error) {
	var (
		r    StoredReport
		data string
	)
	err := row.Scan(&r.ID, &r.OperationType, &r.PatternText, &r.TotalItems, &r.Succeeded,
		&r.Failed, &r.TotalRetries, &data, &r.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &r.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode report errors: %w", err)
	}
	return &r, nil
}

// GetReport returns one stored report.
func (s *SQLiteStorage) GetReport(ctx context.Context, id int64) (*StoredReport, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	r, err := scanReport(s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM error_reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get error report: %w", err)
	}
	return r, nil
}

// ListReports returns reports newest first, optionally only those for one pattern.
// A limit of zero returns all.
func (s *SQLiteStorage) ListReports(ctx context.Context, patternText string, limit int) ([]StoredReport, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT ` + reportColumns + ` FROM error_reports`
	args := []any{}
	if patternText != "" {
		query += ` WHERE pattern_text = ?`
		args = append(args, patternText)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query error reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reports []StoredReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan error report: %w", err)
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error reports: %w", err)
	}
	return reports, nil
}
