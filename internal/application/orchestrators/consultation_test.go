package orchestrators

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hear/internal/adapters/backend"
	"hear/internal/adapters/storage/clientstore"
	"hear/internal/application/form"
	domain "hear/internal/domain/consultation"
)

func fillConsultation(c *form.Controller, mobile, location string) {
	c.UpdateField("name", "  Asha Rao ")
	c.UpdateField("mobile", mobile)
	c.UpdateField("location", location)
}

func TestConsultation_InsertsTrimmedRowAndNotifies(t *testing.T) {
	client := newFakeClient()
	sender := &fakeSender{}
	c := form.NewController(NewConsultationSpec(ConsultationDeps{Client: client, Sender: sender, LeadInbox: "clinic@example.com"}), nil)
	defer c.Dispose()
	fillConsultation(c, "9876543210", "Tamil Nadu")

	out, err := c.Submit(context.Background())
	if err != nil || out.Status != form.StatusSucceeded {
		t.Fatalf("Submit = %+v, %v", out, err)
	}
	rows := client.table(backend.TableConsultations).inserted
	if len(rows) != 1 || rows[0]["name"] != "Asha Rao" || rows[0]["mobile"] != "9876543210" {
		t.Fatalf("inserted = %v", rows)
	}
	if v := c.View(); v.Message != ConsultationSuccessMessage {
		t.Errorf("message = %q", v.Message)
	}
	if len(sender.sent) != 1 || sender.sent[0].To[0] != "clinic@example.com" {
		t.Fatalf("sent = %+v", sender.sent)
	}
	if !strings.Contains(sender.sent[0].HTML, "Tamil Nadu") {
		t.Errorf("lead body missing location: %s", sender.sent[0].HTML)
	}
}

func TestConsultation_NotificationFailureDoesNotFailSubmit(t *testing.T) {
	client := newFakeClient()
	sender := &fakeSender{err: errors.New("provider down")}
	c := form.NewController(NewConsultationSpec(ConsultationDeps{Client: client, Sender: sender, LeadInbox: "clinic@example.com"}), nil)
	defer c.Dispose()
	fillConsultation(c, "9876543210", "Kerala")

	if out, err := c.Submit(context.Background()); err != nil || out.Status != form.StatusSucceeded {
		t.Fatalf("Submit = %+v, %v", out, err)
	}
}

func TestConsultation_LocalChecks(t *testing.T) {
	tests := []struct {
		name, mobile, location string
		field, msg             string
	}{
		{"short mobile", "98765", "Kerala", "mobile", domain.ErrInvalidMobile.Error()},
		{"letters", "98765abcde", "Kerala", "mobile", domain.ErrInvalidMobile.Error()},
		{"unknown location", "9876543210", "Atlantis", "location", domain.ErrUnknownLocation.Error()},
		{"blank", "9876543210", "  ", "location", RequiredFieldsMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			c := form.NewController(NewConsultationSpec(ConsultationDeps{Client: client}), nil)
			defer c.Dispose()
			fillConsultation(c, tt.mobile, tt.location)

			_, err := c.Submit(context.Background())
			var verr *form.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field || verr.Message != tt.msg {
				t.Fatalf("err = %#v, want %s: %q", err, tt.field, tt.msg)
			}
			if n := len(client.table(backend.TableConsultations).inserted); n != 0 {
				t.Errorf("backend called %d times", n)
			}
		})
	}
}

func TestConsultation_BackendMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&backend.Error{Code: backend.CodeUndefinedTable, Message: `relation "consultations" does not exist`}, "Database table not found. Please contact support."},
		{&backend.Error{Code: backend.CodeUniqueViolation, Message: "duplicate key value"}, "This consultation request already exists."},
		{&backend.Error{Code: "XX000", Message: "boom"}, "Database error: boom"},
		{backend.Connectivity(errors.New("dial tcp: refused")), ConnectivityMessage},
	}
	for _, tt := range tests {
		client := newFakeClient()
		client.table(backend.TableConsultations).err = tt.err
		c := form.NewController(NewConsultationSpec(ConsultationDeps{Client: client}), nil)
		fillConsultation(c, "9876543210", "Goa")

		out, err := c.Submit(context.Background())
		if err == nil || out.Status != form.StatusFailed || out.Reason != tt.want {
			t.Errorf("Submit(%v) = %+v, want reason %q", tt.err, out, tt.want)
		}
		if c.View().Values["mobile"] != "9876543210" {
			t.Error("draft cleared after failure")
		}
		c.Dispose()
	}
}

func TestConsultation_LocalBackendAndHealth(t *testing.T) {
	b := newLocalBackend(t)
	client := b.NewClient(clientstore.NewMemoryStorage())
	c := form.NewController(NewConsultationSpec(ConsultationDeps{Client: client}), nil)
	defer c.Dispose()
	fillConsultation(c, "9876543210", "Delhi")

	out, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Record.String("id") == "" || out.Record.String("location") != "Delhi" {
		t.Errorf("record = %v", out.Record)
	}

	r := ExecuteHealthCheck(context.Background(), client)
	if !r.OK || r.Rows != 1 {
		t.Errorf("health = %+v", r)
	}
}

func TestHealthCheck_ReportsCategory(t *testing.T) {
	client := newFakeClient()
	client.table(backend.TableConsultations).err = backend.Connectivity(errors.New("timeout"))
	r := ExecuteHealthCheck(context.Background(), client)
	if r.OK || r.Category != "connectivity" || r.Detail != "timeout" {
		t.Errorf("health = %+v", r)
	}
}
