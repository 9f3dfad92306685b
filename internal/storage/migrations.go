package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					session_id TEXT,
					method TEXT NOT NULL,
					scope TEXT NOT NULL,
					concurrency INTEGER NOT NULL,
					total INTEGER DEFAULT 0,
					matched INTEGER DEFAULT 0,
					unmatched INTEGER DEFAULT 0,
					errors INTEGER DEFAULT 0,
					skipped INTEGER DEFAULT 0,
					duration_ms INTEGER DEFAULT 0,
					started_at DATETIME NOT NULL,
					finished_at DATETIME
				)`,
				`CREATE INDEX idx_runs_started_at ON runs(started_at)`,

				`CREATE TABLE IF NOT EXISTS error_reports (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					operation_type TEXT NOT NULL,
					pattern_text TEXT NOT NULL,
					total_items INTEGER NOT NULL,
					succeeded INTEGER NOT NULL,
					failed INTEGER NOT NULL,
					total_retries INTEGER DEFAULT 0,
					errors TEXT NOT NULL,
					created_at DATETIME NOT NULL
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add pattern snapshots for resumed runs",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS pattern_snapshots (
					pattern_key TEXT PRIMARY KEY,
					position INTEGER NOT NULL,
					pattern_text TEXT NOT NULL,
					unit_status TEXT NOT NULL,
					food_status TEXT NOT NULL,
					data TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_pattern_snapshots_position ON pattern_snapshots(position)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Index error reports by pattern",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE INDEX IF NOT EXISTS idx_error_reports_pattern ON error_reports(pattern_text)`,
				`CREATE INDEX IF NOT EXISTS idx_error_reports_created_at ON error_reports(created_at)`,
			)
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reads the applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
