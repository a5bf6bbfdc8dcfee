package clientstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	storage "hear/internal/adapters/storage"
)

// SQLiteStore keeps every visitor's storage in the client_storage table.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore returns a SQLiteStore backed by db.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// For returns the Storage of one visitor.
// PRE: visitorID is non-empty
func (s *SQLiteStore) For(visitorID string) Storage {
	return &visitorStorage{db: s.db, visitorID: visitorID}
}

// Forget removes every key of a visitor.
func (s *SQLiteStore) Forget(ctx context.Context, visitorID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM client_storage WHERE visitor_id = ?`, visitorID); err != nil {
		return fmt.Errorf("client storage forget: %w", err)
	}
	return nil
}

type visitorStorage struct {
	db        storage.SQLDB
	visitorID string
}

// Get returns the value stored under key for this visitor.
// PRE: key is non-empty
// POST: ok is false when the key has never been set or was removed
func (v *visitorStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := v.db.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE visitor_id = ? AND key = ?`,
		v.visitorID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("client storage get: %w", err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
// PRE: key is non-empty
// POST: a later Get(key) returns value
func (v *visitorStorage) Set(ctx context.Context, key, value string) error {
	_, err := v.db.ExecContext(ctx, `
		INSERT INTO client_storage (visitor_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(visitor_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		v.visitorID, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("client storage set: %w", err)
	}
	return nil
}

// Remove deletes key for this visitor.
func (v *visitorStorage) Remove(ctx context.Context, key string) error {
	_, err := v.db.ExecContext(ctx,
		`DELETE FROM client_storage WHERE visitor_id = ? AND key = ?`, v.visitorID, key)
	if err != nil {
		return fmt.Errorf("client storage remove: %w", err)
	}
	return nil
}
