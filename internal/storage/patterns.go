package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// interruptedMessage is recorded on axes that were still parsing when a snapshot was taken.
const interruptedMessage = "interrupted before parsing finished"

// SavePatterns replaces the stored snapshot with patterns, keeping their order.
func (s *SQLiteStorage) SavePatterns(ctx context.Context, patterns []*model.Pattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePatterns(patterns); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pattern_snapshots`); err != nil {
			return fmt.Errorf("failed to clear pattern snapshot: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pattern_snapshots (pattern_key, position, pattern_text, unit_status, food_status, data, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(pattern_key) DO UPDATE SET
				position = excluded.position,
				pattern_text = excluded.pattern_text,
				unit_status = excluded.unit_status,
				food_status = excluded.food_status,
				data = excluded.data,
				updated_at = CURRENT_TIMESTAMP`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, p := range patterns {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to marshal pattern %q: %w", p.Text, err)
			}
			if _, err := stmt.ExecContext(ctx, p.Key(), i, p.Text, p.UnitStatus, p.FoodStatus, string(data)); err != nil {
				return fmt.Errorf("failed to save pattern %q: %w", p.Text, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Debug("Saved pattern snapshot", "patterns", len(patterns))
	return nil
}

// UpdatePatterns rewrites the stored rows of patterns in place. Patterns that
// are not in the snapshot are ignored.
func (s *SQLiteStorage) UpdatePatterns(ctx context.Context, patterns []*model.Pattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePatterns(patterns); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE pattern_snapshots
			SET unit_status = ?, food_status = ?, data = ?, updated_at = CURRENT_TIMESTAMP
			WHERE pattern_key = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, p := range patterns {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to marshal pattern %q: %w", p.Text, err)
			}
			res, err := stmt.ExecContext(ctx, p.UnitStatus, p.FoodStatus, string(data), p.Key())
			if err != nil {
				return fmt.Errorf("failed to update pattern %q: %w", p.Text, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				slog.Debug("Pattern not in snapshot", "pattern", p.Text)
			}
		}
		return nil
	})
}

// LoadPatterns returns the stored snapshot in saved order. Axes that were
// still parsing are moved to error so they can be parsed again.
func (s *SQLiteStorage) LoadPatterns(ctx context.Context) ([]*model.Pattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM pattern_snapshots ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []*model.Pattern
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		var p model.Pattern
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("failed to decode pattern: %w", err)
		}
		for _, axis := range []model.Axis{model.AxisUnit, model.AxisFood} {
			if p.Status(axis) == model.StatusParsing {
				if err := p.Transition(axis, model.StatusError, interruptedMessage); err != nil {
					return nil, err
				}
			}
		}
		patterns = append(patterns, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pattern snapshot: %w", err)
	}
	return patterns, nil
}

// PatternCounts tallies stored statuses for one axis.
func (s *SQLiteStorage) PatternCounts(ctx context.Context, axis model.Axis) (map[model.PatternStatus]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	column := "unit_status"
	if axis == model.AxisFood {
		column = "food_status"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM pattern_snapshots GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("failed to count patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.PatternStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan pattern count: %w", err)
		}
		counts[model.PatternStatus(status)] = n
	}
	return counts, rows.Err()
}

// ClearPatterns drops the stored snapshot.
func (s *SQLiteStorage) ClearPatterns(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pattern_snapshots`); err != nil {
		return fmt.Errorf("failed to clear pattern snapshot: %w", err)
	}
	return nil
}
