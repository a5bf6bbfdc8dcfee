package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"hear/internal/adapters/backend"
	"hear/internal/adapters/storage/clientstore"
	"hear/internal/domain/identity"
)

// refreshLeeway is how close to expiry a session is refreshed.
const refreshLeeway = 10 * time.Second

// tokenResponse is the auth API's session payload.
type tokenResponse struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	ExpiresIn    int64               `json:"expires_in"`
	ExpiresAt    int64               `json:"expires_at"`
	User         backend.SessionUser `json:"user"`
}

type auth struct {
	backend.Notifier
	conn    *Connector
	storage clientstore.Storage
	mu      sync.Mutex // serialises refreshes
}

func newAuth(conn *Connector, storage clientstore.Storage) *auth {
	return &auth{conn: conn, storage: storage}
}

// GetSession returns the persisted session, refreshing it when close to expiry.
// PRE: none
// POST: returns (nil, nil) when signed out; the stored session is cleared only
// when the auth API rejects its refresh token
func (a *auth) GetSession(ctx context.Context) (*backend.Session, error) {
	a.mu.Lock()
	sess, err := a.load(ctx)
	if err != nil || sess == nil {
		a.mu.Unlock()
		return nil, err
	}
	if !sess.Expired(a.conn.now(), refreshLeeway) {
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

// SignInWithPassword exchanges credentials for a session.
// POST: on success the session is persisted and SIGNED_IN is emitted
func (a *auth) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	resp, err := a.conn.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, err
	}
	sess, err := a.decodeAndSave(ctx, resp)
	if err != nil {
		return nil, err
	}
	a.Emit(backend.EventSignedIn, sess)
	return sess, nil
}

// SignUp registers a user. When the backend requires e-mail confirmation no
// session is returned and (nil, nil) is the result.
func (a *auth) SignUp(ctx context.Context, email, password string, meta identity.Metadata) (*backend.Session, error) {
	resp, err := a.conn.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body: map[string]any{
			"email":    email,
			"password": password,
			"data":     meta,
		},
	})
	if err != nil {
		return nil, err
	}

	var peek struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.body, &peek); err != nil {
		return nil, fmt.Errorf("decode signup response: %w", err)
	}
	if peek.AccessToken == "" {
		slog.Info("auth_event", "event", "signup_pending_confirmation", "email", email)
		return nil, nil
	}
	sess, err := a.decodeAndSave(ctx, resp)
	if err != nil {
		return nil, err
	}
	a.Emit(backend.EventSignedIn, sess)
	return sess, nil
}

// SignOut forgets the local session, emits SIGNED_OUT, then revokes the token remotely.
// POST: the stored session is gone even when the remote call fails
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
	_, err := a.conn.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  sess.AccessToken,
	})
	return err
}

// accessToken returns the bearer for row requests, or "" when signed out.
func (a *auth) accessToken(ctx context.Context) string {
	sess, err := a.GetSession(ctx)
	if err != nil || sess == nil {
		return ""
	}
	return sess.AccessToken
}

func (a *auth) refresh(ctx context.Context, refreshToken string) (*backend.Session, error) {
	resp, err := a.conn.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	})
	if err != nil {
		return nil, err
	}
	return a.decodeAndSave(ctx, resp)
}

func (a *auth) decodeAndSave(ctx context.Context, resp *response) (*backend.Session, error) {
	var tr tokenResponse
	if err := json.Unmarshal(resp.body, &tr); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, &backend.Error{Code: "invalid_session", Message: "backend returned no access token", Status: resp.status}
	}
	expiresAt := tr.ExpiresAt
	if expiresAt == 0 && tr.ExpiresIn > 0 {
		expiresAt = a.conn.now().Add(time.Duration(tr.ExpiresIn) * time.Second).Unix()
	}
	sess := &backend.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         tr.User,
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
		// unreadable sessions are treated as signed out
		_ = a.storage.Remove(ctx, backend.SessionStorageKey)
		return nil, nil
	}
	return &sess, nil
}
