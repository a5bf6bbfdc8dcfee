// Package session owns one visitor's identity: authenticated, guest or
// anonymous. It is the only writer of that identity and of the guest marker
// in the visitor's durable storage.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hear/internal/adapters/backend"
	"hear/internal/adapters/storage/clientstore"
	"hear/internal/domain/identity"
)

// GuestMarkerKey is the durable storage key of the guest marker.
const GuestMarkerKey = "guestMode"

const guestMarkerValue = "true"

// markerTimeout bounds guest-marker writes triggered by backend pushes,
// which carry no caller context.
const markerTimeout = 5 * time.Second

// Sentinel errors.
var (
	ErrNotAuthenticated    = errors.New("not signed in")
	ErrConfirmationPending = errors.New("check your e-mail to confirm your account")
)

// State is what subscribers observe.
type State struct {
	Identity identity.Identity
	Loading  bool
}

type subscriber struct {
	id uint64
	fn func(State)
}

// Store is a visitor's Session Store.
// INVARIANT: whenever Identity is Authenticated the guest marker is absent
type Store struct {
	auth    backend.Auth
	storage clientstore.Storage

	// notifyMu serialises state transitions with their delivery so that
	// subscribers observe changes in the order they were made.
	notifyMu sync.Mutex

	mu           sync.Mutex
	state        State
	subs         []subscriber
	nextID       uint64
	unsubBackend func()
	closed       bool
	// settled is false while the identity is only a fallback for a backend
	// that could not be asked.
	settled bool
}

// NewStore returns a Store in the loading state.
// PRE: auth and storage belong to the same visitor
// POST: Current().Loading is true until Initialize returns
func NewStore(auth backend.Auth, storage clientstore.Storage) *Store {
	return &Store{
		auth:    auth,
		storage: storage,
		state:   State{Identity: identity.Anonymous(), Loading: true},
	}
}

// Initialize resolves the starting identity and subscribes to backend pushes.
// Backend failures degrade to Anonymous and are only logged; the store then
// stays unsettled so the caller can run Initialize again.
// POST: Current().Loading is false
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.unsubBackend == nil && !s.closed {
		s.unsubBackend = s.auth.OnAuthStateChange(s.onAuthStateChange)
	}
	s.mu.Unlock()

	sess, err := s.auth.GetSession(ctx)
	switch {
	case err != nil:
		slog.Warn("session_init_failed", "error", err.Error(), "category", backend.Classify(err).String())
		s.apply(ctx, identity.Anonymous(), false)
	case sess != nil:
		s.set(ctx, identity.Authenticated(sess.IdentityUser()))
	default:
		if s.guestMarked(ctx) {
			s.set(ctx, identity.Guest())
		} else {
			s.set(ctx, identity.Anonymous())
		}
	}
}

// Settled reports whether the identity came from the backend or from the
// visitor's own action, rather than from a failed Initialize.
func (s *Store) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled
}

// Current returns the present state.
func (s *Store) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every later state change and returns a function
// that removes it. fn must not call Store methods that change state.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// SignOut sets Anonymous and clears the guest marker, then asks the backend
// to end the session. A backend failure is returned but never rolls back the
// local state.
// POST: Current().Identity is Anonymous
func (s *Store) SignOut(ctx context.Context) error {
	s.clearGuestMarker(ctx)
	s.set(ctx, identity.Anonymous())

	if err := s.auth.SignOut(ctx); err != nil {
		slog.Warn("sign_out_failed", "error", err.Error(), "category", backend.Classify(err).String())
		return fmt.Errorf("backend sign-out: %w", err)
	}
	return nil
}

// ContinueAsGuest flags the visitor as a guest. No backend call is made.
// The durable marker is written first, so a failed write changes nothing.
// POST: on success Current().Identity is Guest
func (s *Store) ContinueAsGuest(ctx context.Context) error {
	if err := s.storage.Set(ctx, GuestMarkerKey, guestMarkerValue); err != nil {
		return fmt.Errorf("write guest marker: %w", err)
	}
	s.set(ctx, identity.Guest())
	return nil
}

// SignIn signs in with e-mail and password.
// POST: on success Current().Identity is Authenticated and the guest marker is gone
func (s *Store) SignIn(ctx context.Context, email, password string) (identity.Identity, error) {
	sess, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return s.Current().Identity, err
	}
	id := identity.Authenticated(sess.IdentityUser())
	s.set(ctx, id)
	return id, nil
}

// SignUp registers a new account and signs it in. When the backend asks for
// e-mail confirmation first, ErrConfirmationPending is returned and the
// identity is unchanged.
func (s *Store) SignUp(ctx context.Context, email, password string, meta identity.Metadata) (identity.Identity, error) {
	sess, err := s.auth.SignUp(ctx, email, password, meta)
	if err != nil {
		return s.Current().Identity, err
	}
	if sess == nil {
		return s.Current().Identity, ErrConfirmationPending
	}
	id := identity.Authenticated(sess.IdentityUser())
	s.set(ctx, id)
	return id, nil
}

// Close drops the backend subscription and every subscriber.
func (s *Store) Close() {
	s.mu.Lock()
	unsub := s.unsubBackend
	s.unsubBackend = nil
	s.subs = nil
	s.closed = true
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// onAuthStateChange applies a backend push. A nil session keeps a local
// guest as a guest; otherwise the visitor becomes Anonymous.
func (s *Store) onAuthStateChange(event backend.AuthEvent, sess *backend.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
	defer cancel()

	slog.Debug("auth_state_change", "event", string(event), "has_session", sess != nil)
	if sess != nil {
		s.set(ctx, identity.Authenticated(sess.IdentityUser()))
		return
	}
	if s.Current().Identity.IsGuest() {
		return
	}
	s.set(ctx, identity.Anonymous())
}

// set records a settled id and notifies subscribers.
func (s *Store) set(ctx context.Context, id identity.Identity) {
	s.apply(ctx, id, true)
}

// apply records id and notifies subscribers. Entering Authenticated clears
// the guest marker first. Repeating the current identity notifies no one.
func (s *Store) apply(ctx context.Context, id identity.Identity, settled bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if id.IsAuthenticated() {
		s.clearGuestMarker(ctx)
	}

	s.mu.Lock()
	if !s.closed {
		s.settled = settled
	}
	if s.closed || (!s.state.Loading && sameIdentity(s.state.Identity, id)) {
		s.mu.Unlock()
		return
	}
	s.state = State{Identity: id}
	state := s.state
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(state)
	}
}

func sameIdentity(a, b identity.Identity) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.User == nil || b.User == nil {
		return a.User == b.User
	}
	return *a.User == *b.User
}

func (s *Store) clearGuestMarker(ctx context.Context) {
	if err := s.storage.Remove(ctx, GuestMarkerKey); err != nil {
		slog.Error("internal_error", "op", "clear_guest_marker", "error", err.Error())
	}
}

func (s *Store) guestMarked(ctx context.Context) bool {
	v, ok, err := s.storage.Get(ctx, GuestMarkerKey)
	if err != nil {
		slog.Warn("guest_marker_unreadable", "error", err.Error())
		return false
	}
	return ok && v == guestMarkerValue
}
