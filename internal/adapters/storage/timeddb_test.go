package storage

import (
	"context"
	"testing"
	"time"

	"hear/internal/adapters/http/perf"
)

func TestTimedDB_RecordsEveryStatement(t *testing.T) {
	db := openTestDB(t)
	db.Exec("CREATE TABLE test (id TEXT PRIMARY KEY, val TEXT)")
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(db, collector)
	ctx := context.Background()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	var val string
	if err := tdb.QueryRowContext(ctx, "SELECT val FROM test WHERE id = ?", "1").Scan(&val); err != nil {
		t.Fatalf("QueryRowContext: %v", err)
	}
	if val != "hello" {
		t.Errorf("val = %q, want hello", val)
	}
	rows, err := tdb.QueryContext(ctx, "SELECT id FROM test")
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	rows.Close()

	if collector.TotalRecorded() != 3 {
		t.Errorf("TotalRecorded = %d, want 3", collector.TotalRecorded())
	}

	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	labels := map[string]bool{}
	for _, q := range snap.SlowestQueries {
		labels[q.Path] = true
	}
	if !labels["INSERT test"] || !labels["SELECT test"] {
		t.Errorf("labels = %v, want INSERT test and SELECT test", labels)
	}
}

func TestTimedDB_NilCollector(t *testing.T) {
	db := openTestDB(t)
	tdb := NewTimedDB(db, nil)
	if _, err := tdb.ExecContext(context.Background(), "CREATE TABLE t (id TEXT)"); err != nil {
		t.Fatalf("ExecContext with nil collector: %v", err)
	}
}

func TestStatementLabel(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT id FROM consultations WHERE id = ?", "SELECT consultations"},
		{"\n\t\tINSERT INTO feedback (id) VALUES (?)", "INSERT feedback"},
		{`INSERT INTO "profiles" (id) VALUES (?)`, "INSERT profiles"},
		{"UPDATE auth_users SET failed_logins = 0", "UPDATE auth_users"},
		{"DELETE FROM client_storage WHERE visitor_id = ?", "DELETE client_storage"},
		{"PRAGMA table_info(x)", "PRAGMA"},
		{"   ", "EMPTY"},
	}
	for _, tt := range tests {
		if got := statementLabel(tt.query); got != tt.want {
			t.Errorf("statementLabel(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}
