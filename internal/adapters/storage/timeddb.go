package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"hear/internal/adapters/http/perf"
)

// SQLDB is the database interface used by every store and the local backend.
// Both *sql.DB and *TimedDB satisfy it.
type SQLDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

var _ SQLDB = (*sql.DB)(nil)

// DefaultSlowQueryMs is the default threshold for slow query warnings.
const DefaultSlowQueryMs = 50

var (
	slowQueryOnce sync.Once
	slowQueryMs   float64
)

func slowQueryThreshold() float64 {
	slowQueryOnce.Do(func() {
		slowQueryMs = DefaultSlowQueryMs
		if n, err := strconv.Atoi(os.Getenv("HEAR_SLOW_QUERY_MS")); err == nil && n > 0 {
			slowQueryMs = float64(n)
		}
	})
	return slowQueryMs
}

// TimedDB wraps a *sql.DB, logging slow statements and recording every
// statement to a perf collector under a "VERB table" label.
type TimedDB struct {
	db        *sql.DB
	collector *perf.Collector
	threshold float64
}

var _ SQLDB = (*TimedDB)(nil)

// NewTimedDB wraps db. collector may be nil.
// PRE: db is a valid database connection
// POST: returned TimedDB forwards every call to db
func NewTimedDB(db *sql.DB, collector *perf.Collector) *TimedDB {
	return &TimedDB{db: db, collector: collector, threshold: slowQueryThreshold()}
}

// RawDB returns the unwrapped connection (migrations, pool settings).
func (t *TimedDB) RawDB() *sql.DB { return t.db }

// statementLabel reduces a SQL statement to "VERB table", e.g. "INSERT feedback".
func statementLabel(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "EMPTY"
	}
	verb := strings.ToUpper(fields[0])
	marker := ""
	switch verb {
	case "SELECT", "DELETE":
		marker = "FROM"
	case "INSERT":
		marker = "INTO"
	case "UPDATE":
		if len(fields) > 1 {
			return verb + " " + strings.Trim(fields[1], `"`)
		}
	}
	for i, f := range fields {
		if marker != "" && strings.EqualFold(f, marker) && i+1 < len(fields) {
			name := strings.Trim(fields[i+1], `"(`)
			return verb + " " + name
		}
	}
	return verb
}

func (t *TimedDB) observe(label string, start time.Time) {
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	if durationMs >= t.threshold {
		slog.Warn("slow_query", "statement", label, "duration_ms", durationMs)
	} else {
		slog.Debug("query", "statement", label, "duration_ms", durationMs)
	}
	if t.collector != nil {
		t.collector.Record(perf.Entry{
			Kind:       perf.KindQuery,
			Path:       label,
			DurationMs: durationMs,
			Timestamp:  start,
		})
	}
}

// ExecContext runs a statement and records its timing.
func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer t.observe(statementLabel(query), time.Now())
	return t.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a query and records its timing.
func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer t.observe(statementLabel(query), time.Now())
	return t.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query and records its timing.
func (t *TimedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer t.observe(statementLabel(query), time.Now())
	return t.db.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction and records its timing.
func (t *TimedDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	defer t.observe("BEGIN", time.Now())
	return t.db.BeginTx(ctx, opts)
}

// Close closes the underlying connection.
func (t *TimedDB) Close() error { return t.db.Close() }

// Ping verifies the connection is alive.
func (t *TimedDB) Ping() error { return t.db.Ping() }
