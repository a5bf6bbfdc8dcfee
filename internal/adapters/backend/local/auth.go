package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"hear/internal/adapters/backend"
	accountstore "hear/internal/adapters/storage/account"
	"hear/internal/adapters/storage/clientstore"
	domain "hear/internal/domain/account"
	"hear/internal/domain/identity"
)

var errInvalidCredentials = &backend.Error{
	Code:    backend.CodeInvalidGrant,
	Message: "Invalid login credentials",
	Status:  400,
}

type auth struct {
	backend.Notifier
	b       *Backend
	storage clientstore.Storage
	mu      sync.Mutex
}

func newAuth(b *Backend, store clientstore.Storage) *auth {
	return &auth{b: b, storage: store}
}

// GetSession returns the visitor's session, refreshing an expired one.
// POST: returns (nil, nil) when signed out or the token was revoked; the stored
// session survives refresh failures the backend did not reject
func (a *auth) GetSession(ctx context.Context) (*backend.Session, error) {
	a.mu.Lock()
	sess, err := a.load(ctx)
	if err != nil || sess == nil {
		a.mu.Unlock()
		return nil, err
	}

	tok, err := a.b.accounts.GetToken(ctx, sess.AccessToken)
	switch {
	case errors.Is(err, accountstore.ErrNotFound):
		// revoked elsewhere
		_ = a.storage.Remove(ctx, backend.SessionStorageKey)
		a.mu.Unlock()
		a.Emit(backend.EventSignedOut, nil)
		return nil, nil
	case err != nil:
		a.mu.Unlock()
		return nil, mapSQLError("auth_sessions", err)
	case !tok.Expired(a.b.now()):
		a.mu.Unlock()
		return sess, nil
	}

	refreshed, err := a.refresh(ctx, sess.RefreshToken)
	if err != nil && !backend.Rejected(err) {
		a.mu.Unlock()
		slog.Warn("auth_event", "event", "refresh_deferred", "user_id", sess.User.ID, "error", err.Error())
		return nil, err
	}
	if err != nil {
		_ = a.storage.Remove(ctx, backend.SessionStorageKey)
		a.mu.Unlock()
		slog.Info("auth_event", "event", "refresh_rejected", "user_id", sess.User.ID, "error", err.Error())
		a.Emit(backend.EventSignedOut, nil)
		return nil, err
	}
	a.mu.Unlock()
	a.Emit(backend.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// SignInWithPassword checks credentials and issues a session.
// POST: five consecutive failures lock the account for 15 minutes
func (a *auth) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	acct, err := a.b.accounts.GetByEmail(ctx, email)
	if errors.Is(err, accountstore.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, mapSQLError("auth_users", err)
	}

	now := a.b.now()
	if acct.IsLocked(now) {
		slog.Warn("auth_event", "event", "login_locked", "user_id", acct.ID)
		return nil, &backend.Error{Code: "user_locked", Message: "Too many failed login attempts. Please try again later.", Status: 429}
	}
	if err := acct.CheckPassword(password); err != nil {
		acct.RecordFailedLogin(now)
		if saveErr := a.b.accounts.SaveLoginState(ctx, acct); saveErr != nil {
			slog.Error("internal_error", "op", "save_login_state", "error", saveErr.Error())
		}
		slog.Info("auth_event", "event", "login_failed", "user_id", acct.ID, "failed_logins", acct.FailedLogins)
		return nil, errInvalidCredentials
	}
	if acct.FailedLogins > 0 {
		acct.ResetFailedLogins()
		if err := a.b.accounts.SaveLoginState(ctx, acct); err != nil {
			slog.Error("internal_error", "op", "save_login_state", "error", err.Error())
		}
	}

	sess, err := a.issue(ctx, acct)
	if err != nil {
		return nil, err
	}
	slog.Info("auth_event", "event", "signed_in", "user_id", acct.ID)
	a.Emit(backend.EventSignedIn, sess)
	return sess, nil
}

// SignUp registers and signs in a new user. The local backend confirms
// e-mail addresses immediately.
func (a *auth) SignUp(ctx context.Context, email, password string, meta identity.Metadata) (*backend.Session, error) {
	acct := domain.Account{
		ID:        a.b.newID(),
		Email:     domain.NormalizeEmail(email),
		Metadata:  meta,
		CreatedAt: a.b.now(),
	}
	if err := acct.Validate(); err != nil {
		return nil, &backend.Error{Code: "validation_failed", Message: err.Error(), Status: 422}
	}
	if err := acct.SetPassword(password); err != nil {
		if errors.Is(err, domain.ErrPasswordTooShort) || errors.Is(err, domain.ErrEmptyPassword) {
			return nil, &backend.Error{Code: "weak_password", Message: "Password should be at least 6 characters.", Status: 422}
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := a.b.accounts.Create(ctx, acct); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, &backend.Error{Code: "user_already_exists", Message: "User already registered", Status: 422}
		}
		return nil, mapSQLError("auth_users", err)
	}

	sess, err := a.issue(ctx, acct)
	if err != nil {
		return nil, err
	}
	slog.Info("auth_event", "event", "signed_up", "user_id", acct.ID)
	a.Emit(backend.EventSignedIn, sess)
	return sess, nil
}

// SignOut forgets the local session, emits SIGNED_OUT, then revokes the token.
// POST: the stored session is gone even when revocation fails
func (a *auth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	sess, _ := a.load(ctx)
	removeErr := a.storage.Remove(ctx, backend.SessionStorageKey)
	a.mu.Unlock()

	a.Emit(backend.EventSignedOut, nil)

	if removeErr != nil {
		return fmt.Errorf("forget session: %w", removeErr)
	}
	if sess == nil {
		return nil
	}
	if err := a.b.accounts.DeleteToken(ctx, sess.AccessToken); err != nil {
		return mapSQLError("auth_sessions", err)
	}
	return nil
}

// currentUserID returns the signed-in user's id, or "" when signed out.
func (a *auth) currentUserID(ctx context.Context) string {
	sess, err := a.GetSession(ctx)
	if err != nil || sess == nil {
		return ""
	}
	return sess.User.ID
}

func (a *auth) refresh(ctx context.Context, refreshToken string) (*backend.Session, error) {
	old, err := a.b.accounts.GetTokenByRefresh(ctx, refreshToken)
	if errors.Is(err, accountstore.ErrNotFound) {
		return nil, &backend.Error{Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found", Status: 400}
	}
	if err != nil {
		return nil, mapSQLError("auth_sessions", err)
	}
	acct, err := a.b.accounts.GetByID(ctx, old.UserID)
	if err != nil {
		return nil, mapSQLError("auth_users", err)
	}
	if err := a.b.accounts.DeleteToken(ctx, old.AccessToken); err != nil {
		return nil, mapSQLError("auth_sessions", err)
	}
	return a.issue(ctx, acct)
}

// issue creates a token for acct and persists the session for this visitor.
func (a *auth) issue(ctx context.Context, acct domain.Account) (*backend.Session, error) {
	now := a.b.now()
	tok := domain.Token{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		UserID:       acct.ID,
		ExpiresAt:    now.Add(a.b.tokenTTL),
		CreatedAt:    now,
	}
	if err := a.b.accounts.SaveToken(ctx, tok); err != nil {
		return nil, mapSQLError("auth_sessions", err)
	}

	sess := &backend.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt.Unix(),
		User: backend.SessionUser{
			ID:           acct.ID,
			Email:        acct.Email,
			UserMetadata: acct.Metadata,
		},
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := a.storage.Set(ctx, backend.SessionStorageKey, string(data)); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

func (a *auth) load(ctx context.Context) (*backend.Session, error) {
	raw, ok, err := a.storage.Get(ctx, backend.SessionStorageKey)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var sess backend.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		_ = a.storage.Remove(ctx, backend.SessionStorageKey)
		return nil, nil
	}
	return &sess, nil
}
