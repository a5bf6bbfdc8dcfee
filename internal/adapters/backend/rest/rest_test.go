package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hear/internal/adapters/backend"
	"hear/internal/adapters/storage/clientstore"
)

const testAnonKey = "anon-key"

// newTestConnector starts h as the backend and returns a connector pointed at it.
func newTestConnector(t *testing.T, h http.HandlerFunc) *Connector {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewConnector(Config{URL: srv.URL + "/", AnonKey: testAnonKey, MaxFailures: 2, OpenTimeout: time.Minute}, srv.Client())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func tokenBody(access string, expiresAt int64) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": "refresh-" + access,
		"expires_at":    expiresAt,
		"user": map[string]any{
			"id":            "user-1",
			"email":         "asha@example.com",
			"user_metadata": map[string]string{"full_name": "Asha"},
		},
	}
}

func TestSelect_BuildsQueryAndUsesAnonKeyWhenSignedOut(t *testing.T) {
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/hearing_tests" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("select") != "*" || q.Get("user_id") != "eq.user-1" || q.Get("order") != "test_date.desc" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("apikey") != testAnonKey || r.Header.Get("Authorization") != "Bearer "+testAnonKey {
			t.Errorf("headers apikey=%q auth=%q", r.Header.Get("apikey"), r.Header.Get("Authorization"))
		}
		writeJSON(w, 200, []map[string]any{{"test_date": "2025-01-02", "overall_score": 82.5}})
	})
	c := conn.NewClient(clientstore.NewMemoryStorage())

	rows, err := c.From(backend.TableHearingTests).Select(context.Background(),
		backend.Query{}.Eq("user_id", "user-1").Order("test_date", false))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 1 || rows[0].String("test_date") != "2025-01-02" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestSelect_SingleNoRowsReturnsNotFound(t *testing.T) {
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/vnd.pgrst.object+json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		writeJSON(w, 406, map[string]any{"code": "PGRST116", "message": "JSON object requested, multiple (or no) rows returned"})
	})
	c := conn.NewClient(clientstore.NewMemoryStorage())

	_, err := c.From(backend.TableProfiles).Select(context.Background(), backend.Query{Single: true}.Eq("id", "x"))
	if backend.Classify(err) != backend.CategoryNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestInsert_ParsesRowErrors(t *testing.T) {
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		writeJSON(w, 404, map[string]any{"code": "42P01", "message": `relation "public.feedback" does not exist`})
	})
	c := conn.NewClient(clientstore.NewMemoryStorage())

	_, err := c.From(backend.TableFeedback).Insert(context.Background(), []backend.Row{{"name": "a"}})
	var be *backend.Error
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *backend.Error", err)
	}
	if be.Code != "42P01" || be.Status != 404 {
		t.Errorf("error = %+v", be)
	}
}

func TestUpsert_SendsMergePreference(t *testing.T) {
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Prefer"), "resolution=merge-duplicates") {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		body, _ := io.ReadAll(r.Body)
		var rows []map[string]any
		json.Unmarshal(body, &rows)
		writeJSON(w, 201, rows)
	})
	c := conn.NewClient(clientstore.NewMemoryStorage())

	row, err := c.From(backend.TableProfiles).Upsert(context.Background(), backend.Row{"id": "user-1", "full_name": "Asha"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if row.String("full_name") != "Asha" {
		t.Errorf("row = %v", row)
	}
}

func TestCount_ReadsContentRange(t *testing.T) {
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Content-Range", "0-9/42")
		w.WriteHeader(200)
	})
	c := conn.NewClient(clientstore.NewMemoryStorage())

	n, err := c.From(backend.TableConsultations).Count(context.Background())
	if err != nil || n != 42 {
		t.Fatalf("Count = %d, %v; want 42", n, err)
	}
}

func TestParseContentRange(t *testing.T) {
	if n, err := parseContentRange("*/0"); err != nil || n != 0 {
		t.Errorf("*/0 = %d, %v", n, err)
	}
	if _, err := parseContentRange("0-1/*"); err == nil {
		t.Error("expected error for unknown total")
	}
	if _, err := parseContentRange(""); err == nil {
		t.Error("expected error for empty header")
	}
}

func TestAuth_SignInPersistsSessionAndEmits(t *testing.T) {
	var sawBearer atomic.Value
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			if r.URL.Query().Get("grant_type") != "password" {
				t.Errorf("grant_type = %q", r.URL.Query().Get("grant_type"))
			}
			writeJSON(w, 200, tokenBody("tok-1", time.Now().Add(time.Hour).Unix()))
		case "/rest/v1/profiles":
			sawBearer.Store(r.Header.Get("Authorization"))
			writeJSON(w, 200, []map[string]any{})
		}
	})
	store := clientstore.NewMemoryStorage()
	c := conn.NewClient(store)

	var events []backend.AuthEvent
	c.Auth().OnAuthStateChange(func(e backend.AuthEvent, _ *backend.Session) { events = append(events, e) })

	sess, err := c.Auth().SignInWithPassword(context.Background(), "asha@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if sess.User.UserMetadata.FullName != "Asha" {
		t.Errorf("metadata = %+v", sess.User.UserMetadata)
	}
	if _, ok, _ := store.Get(context.Background(), backend.SessionStorageKey); !ok {
		t.Error("session not persisted")
	}
	if len(events) != 1 || events[0] != backend.EventSignedIn {
		t.Errorf("events = %v", events)
	}

	c.From(backend.TableProfiles).Select(context.Background(), backend.Query{})
	if got := sawBearer.Load(); got != "Bearer tok-1" {
		t.Errorf("row request bearer = %v, want user token", got)
	}

	// a fresh client over the same storage resumes the session
	again, err := conn.NewClient(store).Auth().GetSession(context.Background())
	if err != nil || again == nil || again.AccessToken != "tok-1" {
		t.Fatalf("GetSession after restart = %+v, %v", again, err)
	}
}

func TestAuth_InvalidCredentials(t *testing.T) {
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]any{"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials"})
	})
	c := conn.NewClient(clientstore.NewMemoryStorage())

	_, err := c.Auth().SignInWithPassword(context.Background(), "a@b.c", "nope")
	var be *backend.Error
	if !errors.As(err, &be) || be.Code != backend.CodeInvalidGrant || be.Message != "Invalid login credentials" {
		t.Fatalf("err = %v", err)
	}
}

func TestAuth_GetSessionRefreshesNearExpiry(t *testing.T) {
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.URL.Query().Get("grant_type"))
		}
		writeJSON(w, 200, tokenBody("tok-2", time.Now().Add(time.Hour).Unix()))
	})
	store := clientstore.NewMemoryStorage()
	stale, _ := json.Marshal(backend.Session{AccessToken: "tok-1", RefreshToken: "r1", ExpiresAt: time.Now().Unix()})
	store.Set(context.Background(), backend.SessionStorageKey, string(stale))

	c := conn.NewClient(store)
	var events []backend.AuthEvent
	c.Auth().OnAuthStateChange(func(e backend.AuthEvent, _ *backend.Session) { events = append(events, e) })

	sess, err := c.Auth().GetSession(context.Background())
	if err != nil || sess.AccessToken != "tok-2" {
		t.Fatalf("GetSession = %+v, %v", sess, err)
	}
	if len(events) != 1 || events[0] != backend.EventTokenRefreshed {
		t.Errorf("events = %v", events)
	}
}

func TestAuth_SignOutForgetsSessionEvenWhenRemoteFails(t *testing.T) {
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 500, map[string]any{"message": "boom"})
	})
	store := clientstore.NewMemoryStorage()
	live, _ := json.Marshal(backend.Session{AccessToken: "tok-1", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	store.Set(context.Background(), backend.SessionStorageKey, string(live))

	c := conn.NewClient(store)
	var events []backend.AuthEvent
	c.Auth().OnAuthStateChange(func(e backend.AuthEvent, _ *backend.Session) { events = append(events, e) })

	if err := c.Auth().SignOut(context.Background()); err == nil {
		t.Fatal("expected remote error")
	}
	if _, ok, _ := store.Get(context.Background(), backend.SessionStorageKey); ok {
		t.Error("session still stored after SignOut")
	}
	if len(events) != 1 || events[0] != backend.EventSignedOut {
		t.Errorf("events = %v", events)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 503, map[string]any{"message": "unavailable"})
	})
	c := conn.NewClient(clientstore.NewMemoryStorage())
	table := c.From(backend.TableConsultations)

	for i := 0; i < 2; i++ {
		if _, err := table.Insert(context.Background(), []backend.Row{{}}); err == nil {
			t.Fatal("expected error")
		}
	}
	_, err := table.Insert(context.Background(), []backend.Row{{}})
	if backend.Classify(err) != backend.CategoryConnectivity {
		t.Fatalf("err = %v, want connectivity once the circuit is open", err)
	}
	if calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2 (open circuit fails fast)", calls.Load())
	}
}

func TestTransportFailureIsConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	conn := NewConnector(Config{URL: url, AnonKey: testAnonKey}, nil)
	_, err := conn.NewClient(clientstore.NewMemoryStorage()).From(backend.TableFeedback).Count(context.Background())
	if backend.Classify(err) != backend.CategoryConnectivity {
		t.Fatalf("err = %v, want connectivity", err)
	}
}

// staleSessionStore holds a session already inside the refresh leeway.
func staleSessionStore(t *testing.T) *clientstore.MemoryStorage {
	t.Helper()
	store := clientstore.NewMemoryStorage()
	stale, _ := json.Marshal(backend.Session{AccessToken: "tok-1", RefreshToken: "r1", ExpiresAt: time.Now().Unix()})
	if err := store.Set(context.Background(), backend.SessionStorageKey, string(stale)); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return store
}

func TestAuth_RefreshOutageKeepsStoredSession(t *testing.T) {
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream unavailable"))
	})
	store := staleSessionStore(t)
	c := conn.NewClient(store)
	var events []backend.AuthEvent
	c.Auth().OnAuthStateChange(func(e backend.AuthEvent, _ *backend.Session) { events = append(events, e) })

	sess, err := c.Auth().GetSession(context.Background())
	if sess != nil || backend.Classify(err) != backend.CategoryConnectivity {
		t.Fatalf("GetSession = %+v, %v; want connectivity error", sess, err)
	}
	if _, ok, _ := store.Get(context.Background(), backend.SessionStorageKey); !ok {
		t.Error("stored session was dropped during an outage")
	}
	if len(events) != 0 {
		t.Errorf("events = %v, want none", events)
	}
}

func TestAuth_RefreshRejectedSignsOut(t *testing.T) {
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]any{"code": 400, "error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token: Refresh Token Not Found"})
	})
	store := staleSessionStore(t)
	c := conn.NewClient(store)
	var events []backend.AuthEvent
	c.Auth().OnAuthStateChange(func(e backend.AuthEvent, _ *backend.Session) { events = append(events, e) })

	if _, err := c.Auth().GetSession(context.Background()); err == nil {
		t.Fatal("expected the rejection to be returned")
	}
	if _, ok, _ := store.Get(context.Background(), backend.SessionStorageKey); ok {
		t.Error("rejected session still stored")
	}
	if len(events) != 1 || events[0] != backend.EventSignedOut {
		t.Errorf("events = %v, want [SIGNED_OUT]", events)
	}
}

func TestParseError_UncodedServerErrorIsConnectivity(t *testing.T) {
	be := parseError(&response{status: http.StatusBadGateway, body: []byte("<html>bad gateway</html>")})
	if backend.Classify(be) != backend.CategoryConnectivity || be.Status != http.StatusBadGateway {
		t.Errorf("error = %+v, want connectivity with status kept", be)
	}

	coded := parseError(&response{status: 500, body: []byte(`{"code":"XX000","message":"internal"}`)})
	if coded.Code != "XX000" {
		t.Errorf("code = %q, want the server's own code", coded.Code)
	}
}

func TestBreaker_IgnoresCanceledRequests(t *testing.T) {
	var calls atomic.Int32
	conn := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 200, []map[string]any{})
	})
	table := conn.NewClient(clientstore.NewMemoryStorage()).From(backend.TableConsultations)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		if _, err := table.Select(canceled, backend.Query{}); err == nil {
			t.Fatal("expected a canceled request to fail")
		}
	}

	if _, err := table.Select(context.Background(), backend.Query{}); err != nil {
		t.Fatalf("Select after cancellations = %v, want the circuit still closed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1", calls.Load())
	}
}
