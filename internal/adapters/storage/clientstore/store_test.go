package clientstore

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	storage "hear/internal/adapters/storage"
)

func openTestDB(t *testing.T) *sql.DB {
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
	return db
}

// exerciseStorage runs the shared Storage contract against s.
func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "guestMode"); err != nil || ok {
		t.Fatalf("Get on empty = ok %v err %v, want missing", ok, err)
	}
	if err := s.Set(ctx, "guestMode", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, _ := s.Get(ctx, "guestMode"); !ok || v != "true" {
		t.Fatalf("Get = %q,%v, want true,true", v, ok)
	}
	if err := s.Set(ctx, "guestMode", "false"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, _, _ := s.Get(ctx, "guestMode"); v != "false" {
		t.Fatalf("Get after overwrite = %q, want false", v)
	}
	if err := s.Remove(ctx, "guestMode"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "guestMode"); ok {
		t.Fatal("key still present after Remove")
	}
	if err := s.Remove(ctx, "guestMode"); err != nil {
		t.Fatalf("Remove missing key: %v", err)
	}
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestSQLiteStorage(t *testing.T) {
	exerciseStorage(t, NewSQLiteStore(openTestDB(t)).For("visitor-1"))
}

func TestSQLiteStorage_VisitorsAreIsolated(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	ctx := context.Background()

	a := store.For("a")
	b := store.For("b")
	a.Set(ctx, "guestMode", "true")

	if _, ok, _ := b.Get(ctx, "guestMode"); ok {
		t.Fatal("visitor b sees visitor a's key")
	}
	if err := store.Forget(ctx, "a"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, ok, _ := a.Get(ctx, "guestMode"); ok {
		t.Fatal("key survived Forget")
	}
}
