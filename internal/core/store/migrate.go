package store

import (
	"context"
	"errors"
	"fmt"
)

// migrations are applied in order; PRAGMA user_version records the last one
// applied. Append only.
var migrations = [][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS window_runs (
			id TEXT PRIMARY KEY,
			window_limit INTEGER NOT NULL,
			start_tick INTEGER NOT NULL,
			stop_tick INTEGER NOT NULL,
			span INTEGER NOT NULL,
			events INTEGER NOT NULL,
			added INTEGER NOT NULL DEFAULT 0,
			recorded_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_window_runs_recorded ON window_runs(recorded_at);`,
	},
	2: {
		`ALTER TABLE window_runs ADD COLUMN overflows INTEGER NOT NULL DEFAULT 0;`,
	},
}

// SchemaVersion is the schema version Migrate brings a database to.
var SchemaVersion = len(migrations) - 1

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for version := current + 1; version <= SchemaVersion; version++ {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}
		for _, stmt := range migrations[version] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("store migration %d failed: %w", version, err)
			}
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
	}

	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if version > SchemaVersion {
		return 0, fmt.Errorf("store schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	return version, nil
}
