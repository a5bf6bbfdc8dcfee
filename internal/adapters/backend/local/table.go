package local

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"hear/internal/adapters/backend"
)

type localTable struct {
	b    *Backend
	auth *auth
	name string
}

// columns returns the table's column set.
// POST: an unknown or malformed table name yields a 42P01 *backend.Error
func (t *localTable) columns(ctx context.Context) (map[string]bool, error) {
	if !identifierRe.MatchString(t.name) {
		return nil, errTableMissing(t.name)
	}
	rows, err := t.b.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", t.name))
	if err != nil {
		return nil, mapSQLError(t.name, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, mapSQLError(t.name, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLError(t.name, err)
	}
	if len(cols) == 0 {
		return nil, errTableMissing(t.name)
	}
	return cols, nil
}

func (t *localTable) checkColumn(cols map[string]bool, col string) error {
	if !identifierRe.MatchString(col) || !cols[col] {
		return errColumnMissing(t.name, col)
	}
	return nil
}

// ownerFilter returns the row-policy clause for reads, or "" when the table is open.
func (t *localTable) ownerFilter(ctx context.Context) (clause string, args []any, restricted bool) {
	p, ok := rowPolicies[t.name]
	if !ok || !p.ownReads {
		return "", nil, false
	}
	return p.ownerColumn + " = ?", []any{t.auth.currentUserID(ctx)}, true
}

// Select reads rows matching q, restricted to the caller's own rows where a
// row policy applies.
// POST: with q.Single, anything but exactly one row yields PGRST116
func (t *localTable) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	cols, err := t.columns(ctx)
	if err != nil {
		return nil, err
	}

	selectList := "*"
	if q.Columns != "" && q.Columns != "*" {
		parts := strings.Split(q.Columns, ",")
		for i, c := range parts {
			parts[i] = strings.TrimSpace(c)
			if err := t.checkColumn(cols, parts[i]); err != nil {
				return nil, err
			}
		}
		selectList = strings.Join(parts, ", ")
	}

	var where []string
	var args []any
	if clause, a, ok := t.ownerFilter(ctx); ok {
		where = append(where, clause)
		args = append(args, a...)
	}
	if q.EqColumn != "" {
		if err := t.checkColumn(cols, q.EqColumn); err != nil {
			return nil, err
		}
		where = append(where, q.EqColumn+" = ?")
		args = append(args, q.EqValue)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectList, t.name)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if q.OrderBy != "" {
		if err := t.checkColumn(cols, q.OrderBy); err != nil {
			return nil, err
		}
		dir := "DESC"
		if q.Ascending {
			dir = "ASC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s", q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	rows, err := t.b.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapSQLError(t.name, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, mapSQLError(t.name, err)
	}
	if q.Single && len(out) != 1 {
		return nil, errNoRows()
	}
	return out, nil
}

// Count returns the number of rows visible to the caller.
func (t *localTable) Count(ctx context.Context) (int, error) {
	if _, err := t.columns(ctx); err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + t.name
	var args []any
	if clause, a, ok := t.ownerFilter(ctx); ok {
		query += " WHERE " + clause
		args = a
	}
	var n int
	if err := t.b.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapSQLError(t.name, err)
	}
	return n, nil
}

// Insert creates rows in one transaction, filling id and created_at when the
// table has them and the caller did not.
func (t *localTable) Insert(ctx context.Context, rows []backend.Row) ([]backend.Row, error) {
	cols, err := t.columns(ctx)
	if err != nil {
		return nil, err
	}
	prepared := make([]backend.Row, 0, len(rows))
	for _, r := range rows {
		p, err := t.prepare(ctx, cols, r)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}

	tx, err := t.b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapSQLError(t.name, err)
	}
	defer tx.Rollback()

	for _, r := range prepared {
		names, placeholders, args := rowArgs(r)
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(names, ", "), strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, mapSQLError(t.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, mapSQLError(t.name, err)
	}
	return prepared, nil
}

// Upsert creates the row or merges it into the existing row with the same id.
// PRE: row carries an "id"
func (t *localTable) Upsert(ctx context.Context, row backend.Row) (backend.Row, error) {
	cols, err := t.columns(ctx)
	if err != nil {
		return nil, err
	}
	if row.String("id") == "" {
		return nil, &backend.Error{Code: "23502", Message: fmt.Sprintf(`null value in column "id" of relation "%s"`, t.name), Status: 400}
	}
	p, err := t.prepare(ctx, cols, row)
	if err != nil {
		return nil, err
	}
	if cols["updated_at"] {
		p["updated_at"] = t.b.now().UTC().Format(time.RFC3339)
	}

	names, placeholders, args := rowArgs(p)
	var updates []string
	for _, n := range names {
		if n != "id" && n != "created_at" {
			updates = append(updates, n+" = excluded."+n)
		}
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if len(updates) > 0 {
		query += " ON CONFLICT(id) DO UPDATE SET " + strings.Join(updates, ", ")
	} else {
		query += " ON CONFLICT(id) DO NOTHING"
	}
	if _, err := t.b.db.ExecContext(ctx, query, args...); err != nil {
		return nil, mapSQLError(t.name, err)
	}

	stored, err := t.Select(ctx, backend.Query{Single: true}.Eq("id", p["id"]))
	if err != nil {
		return p, nil
	}
	return stored[0], nil
}

// prepare validates columns, applies the write policy and fills defaults.
func (t *localTable) prepare(ctx context.Context, cols map[string]bool, r backend.Row) (backend.Row, error) {
	out := make(backend.Row, len(r)+2)
	for k, v := range r {
		if err := t.checkColumn(cols, k); err != nil {
			return nil, err
		}
		out[k] = v
	}
	if p, ok := rowPolicies[t.name]; ok && p.ownWrites {
		uid := t.auth.currentUserID(ctx)
		if uid == "" || fmt.Sprint(out[p.ownerColumn]) != uid {
			return nil, errPolicy(t.name)
		}
	}
	if cols["id"] && out["id"] == nil {
		out["id"] = t.b.newID()
	}
	if cols["created_at"] && out["created_at"] == nil {
		out["created_at"] = t.b.now().UTC().Format(time.RFC3339)
	}
	return out, nil
}

// rowArgs returns r's columns in a stable order with matching placeholders.
func rowArgs(r backend.Row) (names, placeholders []string, args []any) {
	names = make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, n := range names {
		placeholders = append(placeholders, "?")
		args = append(args, r[n])
	}
	return names, placeholders, args
}

func scanRows(rows *sql.Rows) ([]backend.Row, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []backend.Row{}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(backend.Row, len(names))
		for i, n := range names {
			if b, ok := values[i].([]byte); ok {
				r[n] = string(b)
			} else {
				r[n] = values[i]
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
