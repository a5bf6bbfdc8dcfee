// Package visitor keeps one bundle of state per browser: its backend client,
// durable storage, Session Store and form controllers.
package visitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"hear/internal/adapters/backend"
	"hear/internal/adapters/storage/clientstore"
	"hear/internal/application/form"
	"hear/internal/application/session"
)

// DefaultIdleTimeout is how long an unused visitor stays in memory.
const DefaultIdleTimeout = 24 * time.Hour

// FormFactory builds the spec of one form for v.
type FormFactory func(v *Visitor) form.Spec

// StorageProvider hands out per-visitor durable storage.
type StorageProvider interface {
	For(visitorID string) clientstore.Storage
}

// Visitor is the live state of one browser.
type Visitor struct {
	ID      string
	Client  backend.Client
	Storage clientstore.Storage
	Session *session.Store

	initMu    sync.Mutex
	factories map[string]FormFactory
	clock     form.Clock

	mu       sync.Mutex
	forms    map[string]*form.Controller
	lastSeen time.Time
	disposed bool
}

// Form returns the visitor's controller for name, creating it on first use.
// PRE: name is a registered form
func (v *Visitor) Form(name string) (*form.Controller, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return nil, form.ErrDisposed
	}
	if c, ok := v.forms[name]; ok {
		return c, nil
	}
	f, ok := v.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown form %q", name)
	}
	c := form.NewController(f(v), v.clock)
	v.forms[name] = c
	return c, nil
}

// DropForm disposes the controller for name, if any, so the next Form call
// starts from an empty draft. Used when the identity behind a form changes.
func (v *Visitor) DropForm(name string) {
	v.mu.Lock()
	c, ok := v.forms[name]
	delete(v.forms, name)
	v.mu.Unlock()
	if ok {
		c.Dispose()
	}
}

func (v *Visitor) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *Visitor) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

// dispose stops every controller and detaches the Session Store.
// POST: later Form calls fail with form.ErrDisposed
func (v *Visitor) dispose() {
	v.mu.Lock()
	forms := v.forms
	v.forms = map[string]*form.Controller{}
	v.disposed = true
	v.mu.Unlock()

	for _, c := range forms {
		c.Dispose()
	}
	v.Session.Close()
}

// Config wires a Registry.
type Config struct {
	Backend     backend.Factory
	Storage     StorageProvider
	Forms       map[string]FormFactory
	Clock       form.Clock
	IdleTimeout time.Duration
	Now         func() time.Time
}

// Registry maps visitor ids to live visitors.
// INVARIANT: at most one live Visitor per id
type Registry struct {
	cfg Config

	mu       sync.Mutex
	visitors map[string]*Visitor
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Clock == nil {
		cfg.Clock = form.SystemClock{}
	}
	return &Registry{cfg: cfg, visitors: make(map[string]*Visitor)}
}

// NewID returns a fresh visitor id.
func NewID() string {
	return uuid.New().String()
}

// ValidID reports whether id could have been issued by NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Resolve returns the live visitor for id, rebuilding it from durable storage
// when it is not in memory.
// PRE: ValidID(id)
// POST: the visitor's Session Store has been initialized; an initialization
// that could not reach the backend is retried on the next Resolve
func (r *Registry) Resolve(ctx context.Context, id string) (*Visitor, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("resolve visitor: invalid id %q", id)
	}
	now := r.cfg.Now()

	r.mu.Lock()
	v, ok := r.visitors[id]
	if !ok {
		v = r.build(id)
		r.visitors[id] = v
	}
	r.mu.Unlock()

	v.touch(now)
	v.initialize(ctx)
	return v, nil
}

func (v *Visitor) initialize(ctx context.Context) {
	v.initMu.Lock()
	defer v.initMu.Unlock()
	if v.Session.Settled() {
		return
	}
	v.Session.Initialize(ctx)
	kind := v.Session.Current().Identity.Kind.String()
	if !v.Session.Settled() {
		slog.Warn("visitor_session_degraded", "visitor_id", v.ID, "identity", kind)
		return
	}
	slog.Info("visitor_restored", "visitor_id", v.ID, "identity", kind)
}

// PRE: r.mu is held
func (r *Registry) build(id string) *Visitor {
	store := r.cfg.Storage.For(id)
	client := r.cfg.Backend(store)
	return &Visitor{
		ID:        id,
		Client:    client,
		Storage:   store,
		Session:   session.NewStore(client.Auth(), store),
		factories: r.cfg.Forms,
		clock:     r.cfg.Clock,
		forms:     make(map[string]*form.Controller),
	}
}

// Sweep disposes visitors idle for longer than the idle timeout. Their
// durable storage is kept, so a returning visitor is rebuilt from it.
// POST: returns the number of visitors removed
func (r *Registry) Sweep() int {
	cutoff := r.cfg.Now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var expired []*Visitor
	for id, v := range r.visitors {
		if v.idleSince().Before(cutoff) {
			expired = append(expired, v)
			delete(r.visitors, id)
		}
	}
	r.mu.Unlock()

	for _, v := range expired {
		v.dispose()
	}
	if len(expired) > 0 {
		slog.Info("visitors_expired", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Len returns the number of live visitors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

// Close disposes every visitor.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.visitors
	r.visitors = make(map[string]*Visitor)
	r.mu.Unlock()
	for _, v := range all {
		v.dispose()
	}
}
