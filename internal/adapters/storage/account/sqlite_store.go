package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	storage "hear/internal/adapters/storage"
	domain "hear/internal/domain/account"
)

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

const accountColumns = "id, email, password_hash, full_name, gender, dob, created_at, failed_logins, locked_until"

// SQLiteStore implements Store over the auth_users and auth_sessions tables.
type SQLiteStore struct {
	db storage.SQLDB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new account store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an Account by its ID.
// PRE: id is non-empty
// POST: Returns the entity or ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM auth_users WHERE id = ?", id)
	return scanAccount(row.Scan)
}

// GetByEmail retrieves an Account by normalised email.
// PRE: email is non-empty
// POST: Returns the entity or ErrNotFound
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM auth_users WHERE email = ?", domain.NormalizeEmail(email))
	return scanAccount(row.Scan)
}

// Create inserts a new account. A taken e-mail surfaces as the driver's
// UNIQUE constraint error.
// PRE: value has been validated and its password set
func (s *SQLiteStore) Create(ctx context.Context, value domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_users ("+accountColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		value.ID,
		domain.NormalizeEmail(value.Email),
		value.PasswordHash,
		value.Metadata.FullName,
		value.Metadata.Gender,
		value.Metadata.DOB,
		value.CreatedAt.UTC().Format(timeLayout),
		value.FailedLogins,
		nullableTime(value.LockedUntil),
	)
	return err
}

// SaveLoginState persists the failure counter and lock of an account.
func (s *SQLiteStore) SaveLoginState(ctx context.Context, value domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE auth_users SET failed_logins = ?, locked_until = ? WHERE id = ?",
		value.FailedLogins, nullableTime(value.LockedUntil), value.ID)
	return err
}

// SaveToken records an issued token.
func (s *SQLiteStore) SaveToken(ctx context.Context, token domain.Token) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_sessions (access_token, refresh_token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?, ?)",
		token.AccessToken, token.RefreshToken, token.UserID, token.ExpiresAt.Unix(), token.CreatedAt.UTC().Format(timeLayout))
	return err
}

// GetToken looks a token up by its access token.
func (s *SQLiteStore) GetToken(ctx context.Context, accessToken string) (domain.Token, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT access_token, refresh_token, user_id, expires_at, created_at FROM auth_sessions WHERE access_token = ?", accessToken)
	return scanToken(row.Scan)
}

// GetTokenByRefresh looks a token up by its refresh token.
func (s *SQLiteStore) GetTokenByRefresh(ctx context.Context, refreshToken string) (domain.Token, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT access_token, refresh_token, user_id, expires_at, created_at FROM auth_sessions WHERE refresh_token = ?", refreshToken)
	return scanToken(row.Scan)
}

// DeleteToken revokes a token. Revoking an unknown token is not an error.
func (s *SQLiteStore) DeleteToken(ctx context.Context, accessToken string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM auth_sessions WHERE access_token = ?", accessToken)
	return err
}

// scanAccount extracts an Account from a row scanner function.
func scanAccount(scan func(dest ...any) error) (domain.Account, error) {
	var entity domain.Account
	var createdAt string
	var lockedUntil sql.NullString
	err := scan(
		&entity.ID,
		&entity.Email,
		&entity.PasswordHash,
		&entity.Metadata.FullName,
		&entity.Metadata.Gender,
		&entity.Metadata.DOB,
		&createdAt,
		&entity.FailedLogins,
		&lockedUntil,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, ErrNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	entity.CreatedAt, _ = parseTime(createdAt)
	if lockedUntil.Valid && lockedUntil.String != "" {
		entity.LockedUntil, _ = parseTime(lockedUntil.String)
	}
	return entity, nil
}

func scanToken(scan func(dest ...any) error) (domain.Token, error) {
	var tok domain.Token
	var expiresAt int64
	var createdAt string
	err := scan(&tok.AccessToken, &tok.RefreshToken, &tok.UserID, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Token{}, ErrNotFound
	}
	if err != nil {
		return domain.Token{}, err
	}
	tok.ExpiresAt = time.Unix(expiresAt, 0)
	tok.CreatedAt, _ = parseTime(createdAt)
	return tok, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		t, err := time.Parse(f, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time: %s", s)
}
