package orchestrators

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"hear/internal/adapters/backend"
	"hear/internal/adapters/backend/local"
	emailAdapter "hear/internal/adapters/email"
	storage "hear/internal/adapters/storage"
	"hear/internal/application/session"
	"hear/internal/domain/identity"
)

// fakeTable records writes and replays a scripted error.
type fakeTable struct {
	mu       sync.Mutex
	inserted []backend.Row
	upserted []backend.Row
	selects  []backend.Query
	rows     []backend.Row
	count    int
	err      error
}

// Select returns the scripted rows.
// PRE: none
// POST: q is recorded
func (t *fakeTable) Select(_ context.Context, q backend.Query) ([]backend.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selects = append(t.selects, q)
	if t.err != nil {
		return nil, t.err
	}
	return t.rows, nil
}

// Count returns the scripted count.
func (t *fakeTable) Count(context.Context) (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	return t.count, nil
}

// Insert records rows unless an error is scripted.
// PRE: none
// POST: rows are echoed back on success
func (t *fakeTable) Insert(_ context.Context, rows []backend.Row) ([]backend.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	t.inserted = append(t.inserted, rows...)
	return rows, nil
}

// Upsert records row unless an error is scripted.
func (t *fakeTable) Upsert(_ context.Context, row backend.Row) (backend.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	t.upserted = append(t.upserted, row)
	return row, nil
}

// fakeClient hands out one fakeTable per table name.
type fakeClient struct {
	tables map[string]*fakeTable
}

func newFakeClient() *fakeClient {
	return &fakeClient{tables: map[string]*fakeTable{}}
}

func (c *fakeClient) Auth() backend.Auth { return nil }

func (c *fakeClient) From(name string) backend.Table { return c.table(name) }

func (c *fakeClient) table(name string) *fakeTable {
	t, ok := c.tables[name]
	if !ok {
		t = &fakeTable{}
		c.tables[name] = t
	}
	return t
}

// fakeSender captures sent e-mails.
type fakeSender struct {
	mu   sync.Mutex
	sent []emailAdapter.SendRequest
	err  error
}

// Send records req.
// PRE: none
// POST: returns the scripted error, if any
func (s *fakeSender) Send(_ context.Context, req emailAdapter.SendRequest) (emailAdapter.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	if s.err != nil {
		return emailAdapter.SendResult{}, s.err
	}
	return emailAdapter.SendResult{MessageID: "msg-1"}, nil
}

// fixedIdentity is an IdentitySource that never changes.
type fixedIdentity struct{ id identity.Identity }

func (f fixedIdentity) Current() session.State { return session.State{Identity: f.id} }

func signedIn(id string) fixedIdentity {
	u := identity.NewUser(id, "asha@example.com", identity.Metadata{FullName: "Asha Rao", Gender: "female", DOB: "1990-04-01"})
	return fixedIdentity{id: identity.Authenticated(u)}
}

// newLocalBackend returns a migrated in-memory local backend.
func newLocalBackend(t *testing.T) *local.Backend {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return local.New(db)
}
