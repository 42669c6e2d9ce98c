// Package storage opens the SQLite database that holds run history.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// migrations are applied in order; PRAGMA user_version records how many ran.
// Append only.
var migrations = []string{
	`CREATE TABLE run_log (
  id           TEXT PRIMARY KEY,
  watch_id     TEXT NOT NULL,
  watch_name   TEXT NOT NULL,
  command      TEXT NOT NULL,
  directory    TEXT NOT NULL,
  exit_code    INTEGER NOT NULL,
  cancelled    INTEGER NOT NULL DEFAULT 0,
  error        TEXT,
  failures     INTEGER NOT NULL DEFAULT 0,
  output       TEXT,
  started_at   TEXT NOT NULL,
  completed_at TEXT NOT NULL
);
CREATE TABLE run_failure (
  run_id  TEXT NOT NULL REFERENCES run_log(id) ON DELETE CASCADE,
  seq     INTEGER NOT NULL,
  path    TEXT NOT NULL,
  line    INTEGER NOT NULL,
  column  INTEGER NOT NULL DEFAULT 0,
  message TEXT NOT NULL,
  PRIMARY KEY (run_id, seq)
);`,
	`CREATE INDEX run_log_watch_started_idx ON run_log(watch_id, started_at);
CREATE INDEX run_log_completed_idx ON run_log(completed_at);`,
}

// SchemaVersion is the user_version of a fully migrated database.
func SchemaVersion() int { return len(migrations) }

// OpenSQLite opens (creating if needed) the history database at path and
// migrates it. The path must be on a local filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := ValidateLocalFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per connection, so keep exactly one.
	db.SetMaxOpenConns(1)

	if err := configure(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func configure(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"foreign_keys = ON",
		"busy_timeout = 5000",
		"journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, "PRAGMA "+pragma); err != nil {
			return fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}
	return nil
}

// Migrate brings db up to SchemaVersion. A database written by a newer
// watchit is refused rather than silently misread.
func Migrate(ctx context.Context, db *sql.DB) error {
	var have int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&have); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if have > len(migrations) {
		return fmt.Errorf("history schema version %d is newer than supported %d", have, len(migrations))
	}
	for v := have; v < len(migrations); v++ {
		if err := applyMigration(ctx, db, v); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, v int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: %w", v+1, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
		return fmt.Errorf("migration %d: %w", v+1, err)
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
		return fmt.Errorf("migration %d: record version: %w", v+1, err)
	}
	return tx.Commit()
}
