package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"hear/internal/adapters/backend"
)

type restTable struct {
	conn *Connector
	auth *auth
	name string
}

func (t *restTable) path() string { return "/rest/v1/" + url.PathEscape(t.name) }

// Select reads rows matching q.
// POST: with q.Single, zero rows yields a PGRST116 *backend.Error
func (t *restTable) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	cols := q.Columns
	if cols == "" {
		cols = "*"
	}
	params := url.Values{"select": {cols}}
	if q.EqColumn != "" {
		params.Set(q.EqColumn, "eq."+fmt.Sprint(q.EqValue))
	}
	if q.OrderBy != "" {
		dir := "desc"
		if q.Ascending {
			dir = "asc"
		}
		params.Set("order", q.OrderBy+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	headers := map[string]string{}
	if q.Single {
		headers["Accept"] = "application/vnd.pgrst.object+json"
	}

	resp, err := t.conn.do(ctx, request{
		method:  http.MethodGet,
		path:    t.path(),
		query:   params,
		headers: headers,
		token:   t.auth.accessToken(ctx),
	})
	if err != nil {
		return nil, err
	}

	if q.Single {
		var row backend.Row
		if err := json.Unmarshal(resp.body, &row); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", t.name, err)
		}
		return []backend.Row{row}, nil
	}
	var rows []backend.Row
	if err := json.Unmarshal(resp.body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", t.name, err)
	}
	return rows, nil
}

// Count returns the exact row count without fetching rows.
func (t *restTable) Count(ctx context.Context) (int, error) {
	resp, err := t.conn.do(ctx, request{
		method:  http.MethodHead,
		path:    t.path(),
		query:   url.Values{"select": {"*"}},
		headers: map[string]string{"Prefer": "count=exact"},
		token:   t.auth.accessToken(ctx),
	})
	if err != nil {
		return 0, err
	}
	return parseContentRange(resp.header.Get("Content-Range"))
}

// parseContentRange extracts the total from "0-24/3573" or "*/0".
func parseContentRange(v string) (int, error) {
	_, total, ok := strings.Cut(v, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("content-range without total: %q", v)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("content-range total: %w", err)
	}
	return n, nil
}

// Insert creates rows and returns them as stored.
func (t *restTable) Insert(ctx context.Context, rows []backend.Row) ([]backend.Row, error) {
	resp, err := t.conn.do(ctx, request{
		method:  http.MethodPost,
		path:    t.path(),
		headers: map[string]string{"Prefer": "return=representation"},
		token:   t.auth.accessToken(ctx),
		body:    rows,
	})
	if err != nil {
		return nil, err
	}
	var out []backend.Row
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("decode %s insert: %w", t.name, err)
	}
	return out, nil
}

// Upsert creates or merges one row on its primary key.
func (t *restTable) Upsert(ctx context.Context, row backend.Row) (backend.Row, error) {
	resp, err := t.conn.do(ctx, request{
		method:  http.MethodPost,
		path:    t.path(),
		headers: map[string]string{"Prefer": "resolution=merge-duplicates,return=representation"},
		token:   t.auth.accessToken(ctx),
		body:    []backend.Row{row},
	})
	if err != nil {
		return nil, err
	}
	var out []backend.Row
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("decode %s upsert: %w", t.name, err)
	}
	if len(out) == 0 {
		return row, nil
	}
	return out[0], nil
}
