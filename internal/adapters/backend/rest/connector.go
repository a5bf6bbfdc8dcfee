// Package rest talks to the hosted backend over its HTTP API
// (PostgREST-style rows under /rest/v1, GoTrue-style auth under /auth/v1).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"hear/internal/adapters/backend"
	"hear/internal/adapters/storage/clientstore"
)

// Default circuit breaker and transport settings.
const (
	defaultTimeout     = 10 * time.Second
	defaultMaxFailures = 5
	defaultOpenTimeout = 30 * time.Second
	defaultInterval    = 60 * time.Second
)

// Config configures the connection to the hosted backend.
type Config struct {
	URL     string
	AnonKey string
	Timeout time.Duration
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial request is allowed.
	OpenTimeout time.Duration
}

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

var errServerStatus = errors.New("backend server error")

// Connector holds what every visitor client shares: the HTTP client and
// the circuit breaker guarding the backend.
type Connector struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	now     func() time.Time
}

// NewConnector builds a Connector. httpClient may be nil.
// PRE: cfg.URL and cfg.AnonKey are non-empty
// POST: returned Connector is safe for concurrent use
func NewConnector(cfg Config, httpClient *http.Client) *Connector {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	maxFailures := cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Interval:    defaultInterval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// a visitor abandoning its request says nothing about the backend
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Connector{cfg: cfg, http: httpClient, breaker: cb, now: time.Now}
}

// NewClient returns a backend client whose auth session persists in storage.
func (c *Connector) NewClient(storage clientstore.Storage) backend.Client {
	return &client{conn: c, auth: newAuth(c, storage)}
}

// Factory adapts NewClient to backend.Factory.
func (c *Connector) Factory() backend.Factory {
	return c.NewClient
}

// request describes one call to the backend.
type request struct {
	method  string
	path    string
	query   url.Values
	headers map[string]string
	token   string // bearer token; anon key when empty
	body    any
}

// do sends req through the circuit breaker.
// POST: transport failures and an open circuit return a CONNECTIVITY *backend.Error;
// non-2xx responses return a *backend.Error parsed from the body
func (c *Connector) do(ctx context.Context, req request) (*response, error) {
	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", req.path, err)
		}
	}

	u := c.cfg.URL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
		if err != nil {
			return nil, err
		}
		token := req.token
		if token == "" {
			token = c.cfg.AnonKey
		}
		httpReq.Header.Set("apikey", c.cfg.AnonKey)
		httpReq.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		for k, v := range req.headers {
			httpReq.Header.Set(k, v)
		}

		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()
		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, err
		}
		r := &response{status: httpResp.StatusCode, header: httpResp.Header, body: data}
		if r.status >= 500 {
			return r, errServerStatus
		}
		return r, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, backend.Connectivity(fmt.Errorf("backend unavailable: %w", err))
	case err != nil && resp == nil:
		return nil, backend.Connectivity(err)
	}
	if resp.status >= 400 {
		return resp, parseError(resp)
	}
	return resp, nil
}

// errorBody accepts both the row API and the auth API error shapes.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	Message          string          `json:"message"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Err              string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func parseError(r *response) *backend.Error {
	var eb errorBody
	_ = json.Unmarshal(r.body, &eb)

	code := eb.ErrorCode
	if code == "" {
		var s string
		if json.Unmarshal(eb.Code, &s) == nil {
			code = s
		}
	}
	if code == "" {
		code = eb.Err
	}

	msg := firstNonEmpty(eb.Message, eb.Msg, eb.ErrorDescription, http.StatusText(r.status))
	if code == "" && r.status >= 500 {
		// an uncoded server error is an outage, not a data problem
		code = backend.CodeConnectivity
	}
	return &backend.Error{Code: code, Message: msg, Details: eb.Details, Hint: eb.Hint, Status: r.status}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type client struct {
	conn *Connector
	auth *auth
}

func (c *client) Auth() backend.Auth { return c.auth }

func (c *client) From(table string) backend.Table {
	return &restTable{conn: c.conn, auth: c.auth, name: table}
}
