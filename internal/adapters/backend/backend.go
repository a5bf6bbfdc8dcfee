// Package backend defines the contract of the hosted backend that provides
// authentication and row storage. Implementations live in the rest and local
// subpackages; nothing outside this tree knows which one is in use.
package backend

import (
	"context"
	"time"

	"hear/internal/adapters/storage/clientstore"
	"hear/internal/domain/identity"
)

// Row is a single record as exchanged with the backend.
type Row map[string]any

// String returns the value of col as a string, or "" when absent or not a string.
func (r Row) String(col string) string {
	if v, ok := r[col].(string); ok {
		return v
	}
	return ""
}

// Query describes a select: columns, one equality filter, one ordering.
type Query struct {
	Columns   string // "*" when empty
	EqColumn  string
	EqValue   any
	OrderBy   string
	Ascending bool
	Limit     int
	// Single requests exactly one row; zero rows yields a PGRST116 error.
	Single bool
}

// Eq returns a copy of q filtered on col = value.
func (q Query) Eq(col string, value any) Query {
	q.EqColumn = col
	q.EqValue = value
	return q
}

// Order returns a copy of q ordered by col.
func (q Query) Order(col string, ascending bool) Query {
	q.OrderBy = col
	q.Ascending = ascending
	return q
}

// Table is row-level access to one backend table.
type Table interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, rows []Row) ([]Row, error)
	Upsert(ctx context.Context, row Row) (Row, error)
}

// AuthEvent names a backend-originated session change.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// SessionUser is the user payload carried by a Session.
type SessionUser struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	UserMetadata identity.Metadata `json:"user_metadata"`
}

// Session is a backend authentication session.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    int64       `json:"expires_at"`
	User         SessionUser `json:"user"`
}

// Expired reports whether the session expires within leeway of now.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return now.Add(leeway).Unix() >= s.ExpiresAt
}

// IdentityUser converts the session user to a domain user.
func (s *Session) IdentityUser() identity.User {
	return identity.NewUser(s.User.ID, s.User.Email, s.User.UserMetadata)
}

// AuthListener receives session changes pushed by the backend.
type AuthListener func(event AuthEvent, session *Session)

// Auth is the backend's authentication API for one visitor.
type Auth interface {
	GetSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, meta identity.Metadata) (*Session, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn AuthListener) (unsubscribe func())
}

// Client is a per-visitor handle on the backend.
type Client interface {
	Auth() Auth
	From(table string) Table
}

// Factory builds a Client whose auth session persists in storage.
type Factory func(storage clientstore.Storage) Client

// Table names consumed by the site.
const (
	TableConsultations = "consultations"
	TableProfiles      = "profiles"
	TableFeedback      = "feedback"
	TableHearingTests  = "hearing_tests"
)

// SessionStorageKey is where implementations persist the auth session.
const SessionStorageKey = "sb-auth-token"
