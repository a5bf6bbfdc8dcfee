package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// resendStub records the last /emails payload and answers with status.
type resendStub struct {
	status int
	path   string
	auth   string
	body   map[string]any
}

func (s *resendStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.path = r.URL.Path
	s.auth = r.Header.Get("Authorization")
	_ = json.NewDecoder(r.Body).Decode(&s.body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(s.status)
	if s.status == http.StatusOK {
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
		return
	}
	_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid from field"}`))
}

func newStubbedSender(t *testing.T, stub *resendStub) *ResendSender {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	s, err := NewResendSender("re_test", "H.E.A.R <noreply@hear.example>", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewResendSender: %v", err)
	}
	return s
}

func TestResendSender_Send(t *testing.T) {
	stub := &resendStub{status: http.StatusOK}
	s := newStubbedSender(t, stub)

	res, err := s.Send(context.Background(), SendRequest{
		To:      []string{"clinic@hear.example"},
		Subject: "Consultation request: Asha (Kerala)",
		HTML:    "<p>hi</p>",
		Tags:    map[string]string{"category": "consultation_lead"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID != "msg_123" {
		t.Errorf("message id = %q", res.MessageID)
	}
	if !strings.HasSuffix(stub.path, "/emails") {
		t.Errorf("path = %q", stub.path)
	}
	if stub.auth != "Bearer re_test" {
		t.Errorf("authorization = %q", stub.auth)
	}
	if stub.body["from"] != "H.E.A.R <noreply@hear.example>" {
		t.Errorf("from = %v, want the sender default", stub.body["from"])
	}
	tags, _ := stub.body["tags"].([]any)
	if len(tags) != 1 {
		t.Fatalf("tags = %v", stub.body["tags"])
	}
	if tag, _ := tags[0].(map[string]any); tag["name"] != "category" || tag["value"] != "consultation_lead" {
		t.Errorf("tag = %v", tags[0])
	}
}

func TestResendSender_SendFailure(t *testing.T) {
	s := newStubbedSender(t, &resendStub{status: http.StatusUnprocessableEntity})

	_, err := s.Send(context.Background(), SendRequest{To: []string{"clinic@hear.example"}, Subject: "x", HTML: "x"})
	if err == nil {
		t.Fatal("expected an error for a rejected e-mail")
	}
	if !strings.Contains(err.Error(), "resend send failed") {
		t.Errorf("error = %v", err)
	}
}

func TestWithBaseURL_Invalid(t *testing.T) {
	if _, err := NewResendSender("re_test", "a@b.c", WithBaseURL("://bad")); err == nil {
		t.Error("expected an error for a malformed base url")
	}
}

func TestResendTags_SortedByName(t *testing.T) {
	got := resendTags(map[string]string{"b": "2", "a": "1"})
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Errorf("tags = %+v", got)
	}
	if resendTags(nil) != nil {
		t.Error("no tags should produce nil")
	}
}

func TestNoopSender(t *testing.T) {
	s := NewNoopSender()
	a, err := s.Send(context.Background(), SendRequest{To: []string{"x@y.z"}, Subject: "s"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	b, _ := s.Send(context.Background(), SendRequest{To: []string{"x@y.z"}, Subject: "s"})
	if a.MessageID == b.MessageID || !strings.HasPrefix(a.MessageID, "noop-") {
		t.Errorf("message ids = %q, %q", a.MessageID, b.MessageID)
	}
	if s.Sent() != 2 {
		t.Errorf("sent = %d", s.Sent())
	}
}
