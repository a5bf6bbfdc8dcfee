package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migrations are applied in order; the schema version is the number applied.
// Never edit a shipped migration, append a new one.
var migrations = []string{
	// 1: visitor durable storage
	`CREATE TABLE IF NOT EXISTS client_storage (
		visitor_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (visitor_id, key)
	);`,

	// 2: local backend auth
	`CREATE TABLE IF NOT EXISTS auth_users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		dob TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		failed_logins INTEGER NOT NULL DEFAULT 0,
		locked_until TEXT
	);
	CREATE TABLE IF NOT EXISTS auth_sessions (
		access_token TEXT PRIMARY KEY,
		refresh_token TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES auth_users(id)
	);`,

	// 3: site tables
	`CREATE TABLE IF NOT EXISTS consultations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		mobile TEXT NOT NULL,
		location TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		date_of_birth TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		updated_at TEXT
	);
	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		feedback TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS hearing_tests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		test_date TEXT NOT NULL,
		overall_score REAL NOT NULL DEFAULT 0,
		test_type TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_hearing_tests_user ON hearing_tests(user_id, test_date);`,
}

// LatestSchemaVersion returns the version reached after all migrations.
func LatestSchemaVersion() int {
	return len(migrations)
}

// MigrateDB brings the schema up to LatestSchemaVersion.
// PRE: db is a valid database connection
// POST: all pending migrations applied inside one transaction each
func MigrateDB(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: record version: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", i+1, err)
		}
		slog.Info("schema_migrated", "version", i+1)
	}
	return nil
}
