// Package local is a self-hosted development backend over SQLite. It speaks
// the same contract as the hosted backend, including its error codes and
// per-user row policies, so the site runs without network access.
package local

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"hear/internal/adapters/backend"
	accountstore "hear/internal/adapters/storage/account"
	storage "hear/internal/adapters/storage"
	"hear/internal/adapters/storage/clientstore"
)

// DefaultTokenTTL is the lifetime of an issued access token.
const DefaultTokenTTL = time.Hour

// Backend is shared by every visitor client.
type Backend struct {
	db       storage.SQLDB
	accounts accountstore.Store
	tokenTTL time.Duration
	now      func() time.Time
	newID    func() string
}

// New returns a Backend over a migrated database.
// PRE: db has been migrated with storage.MigrateDB
// POST: returned Backend is safe for concurrent use
func New(db storage.SQLDB) *Backend {
	return &Backend{
		db:       db,
		accounts: accountstore.NewSQLiteStore(db),
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// NewClient returns a backend client whose auth session persists in store.
func (b *Backend) NewClient(store clientstore.Storage) backend.Client {
	return &client{b: b, auth: newAuth(b, store)}
}

// Factory adapts NewClient to backend.Factory.
func (b *Backend) Factory() backend.Factory {
	return b.NewClient
}

type client struct {
	b    *Backend
	auth *auth
}

func (c *client) Auth() backend.Auth { return c.auth }

func (c *client) From(table string) backend.Table {
	return &localTable{b: c.b, auth: c.auth, name: table}
}

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// rowPolicy restricts rows to their owner, the way the hosted backend's
// row-level security does.
type rowPolicy struct {
	ownerColumn string
	ownReads    bool
	ownWrites   bool
}

var rowPolicies = map[string]rowPolicy{
	backend.TableProfiles:     {ownerColumn: "id", ownReads: true, ownWrites: true},
	backend.TableHearingTests: {ownerColumn: "user_id", ownReads: true, ownWrites: true},
}

func errTableMissing(name string) *backend.Error {
	return &backend.Error{
		Code:    backend.CodeUndefinedTable,
		Message: fmt.Sprintf(`relation "public.%s" does not exist`, name),
		Status:  404,
	}
}

func errColumnMissing(tableName, col string) *backend.Error {
	return &backend.Error{
		Code:    backend.CodeUndefinedColumn,
		Message: fmt.Sprintf("column %s.%s does not exist", tableName, col),
		Status:  400,
	}
}

func errPolicy(tableName string) *backend.Error {
	return &backend.Error{
		Code:    backend.CodeInsufficientPriv,
		Message: fmt.Sprintf(`new row violates row-level security policy for table "%s"`, tableName),
		Status:  403,
	}
}

func errNoRows() *backend.Error {
	return &backend.Error{
		Code:    backend.CodeNoRows,
		Message: "JSON object requested, multiple (or no) rows returned",
		Details: "The result contains 0 rows",
		Status:  406,
	}
}

// mapSQLError translates driver errors into backend errors with the codes
// the hosted backend would return.
func mapSQLError(tableName string, err error) error {
	if err == nil {
		return nil
	}
	var be *backend.Error
	if errors.As(err, &be) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return &backend.Error{
			Code:    backend.CodeUniqueViolation,
			Message: fmt.Sprintf(`duplicate key value violates unique constraint "%s_pkey"`, tableName),
			Details: msg,
			Status:  409,
		}
	case strings.Contains(msg, "no such table"):
		return errTableMissing(tableName)
	case strings.Contains(msg, "no such column"), strings.Contains(msg, "has no column named"):
		return &backend.Error{Code: backend.CodeUndefinedColumn, Message: msg, Status: 400}
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return &backend.Error{Code: "23502", Message: msg, Status: 400}
	}
	return &backend.Error{Code: "", Message: msg, Status: 500}
}
