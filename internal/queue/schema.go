package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var baseSchema string

// migrations[i] upgrades a database from user_version i to i+1. Append new
// steps; never edit a released one.
var migrations = []string{
	baseSchema,
	`CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id, attempt)`,
}

// ErrSchemaMismatch reports a database written by a newer build.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func currentSchemaVersion() int {
	return len(migrations)
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	want := currentSchemaVersion()
	if version > want {
		return fmt.Errorf("%w: database has version %d, this build supports %d (remove %s to start fresh)",
			ErrSchemaMismatch, version, want, s.path)
	}

	for ; version < want; version++ {
		if err := s.applyMigration(ctx, version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, from int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", from+1, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migrations[from]); err != nil {
		return fmt.Errorf("apply migration %d: %w", from+1, err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", from+1)); err != nil {
		return fmt.Errorf("record schema version %d: %w", from+1, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", from+1, err)
	}
	return nil
}
