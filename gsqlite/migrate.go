package gsqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Latest schema version written by migrateFrom.
const schemaVersion = 1

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		`CREATE TABLE IF NOT EXISTS migrations(
  id INTEGER PRIMARY KEY CHECK (id = 0),
  version INTEGER NOT NULL
);`,
	); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO migrations(id, version) VALUES (0, 0)`,
	); err != nil {
		return fmt.Errorf("failed to set initial migration version: %w", err)
	}

	var current int
	if err := tx.QueryRowContext(
		ctx, `SELECT version FROM migrations WHERE id = 0`,
	).Scan(&current); err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	if err := migrateFrom(ctx, tx, current); err != nil {
		return fmt.Errorf("migration from version %d failed: %w", current, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

func migrateFrom(ctx context.Context, tx *sql.Tx, version int) error {
	switch version {
	case 0:
		if err := migrateInitial(ctx, tx); err != nil {
			return fmt.Errorf("initial migration: %w", err)
		}
	case schemaVersion:
		return nil
	default:
		return fmt.Errorf("unknown schema version %d (this build supports up to %d)", version, schemaVersion)
	}

	if _, err := tx.ExecContext(
		ctx, `UPDATE migrations SET version = ? WHERE id = 0`, schemaVersion,
	); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	// Recommended after any schema change.
	if _, err := tx.ExecContext(ctx, `PRAGMA optimize`); err != nil {
		return fmt.Errorf("failed to run PRAGMA optimize after migration: %w", err)
	}
	return nil
}

func migrateInitial(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
-- One row per committed version.
CREATE TABLE versions(
  version INTEGER PRIMARY KEY CHECK (version >= 0),
  root_hash BLOB NOT NULL
);

-- Every write to a key, tagged with the version that wrote it.
-- The value of a key at version V is the row with the greatest version <= V;
-- a deleted row means the key is absent.
CREATE TABLE entries(
  key BLOB NOT NULL,
  version INTEGER NOT NULL REFERENCES versions(version),
  deleted INTEGER NOT NULL CHECK (deleted IN (0, 1)),
  value BLOB,
  PRIMARY KEY (key, version)
) WITHOUT ROWID;
`); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}
