package orchestrators

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"hear/internal/adapters/backend"
	emailAdapter "hear/internal/adapters/email"
	"hear/internal/application/form"
	domain "hear/internal/domain/consultation"
)

// ConsultationRevertAfter is how long the thank-you view shows.
const ConsultationRevertAfter = 3 * time.Second

// ConsultationDeps are the collaborators of the consultation form.
type ConsultationDeps struct {
	Client backend.Client
	// Sender and LeadInbox are optional; without both no lead e-mail is sent.
	Sender    emailAdapter.Sender
	LeadInbox string
}

// NewConsultationSpec configures the consultation booking form.
// PRE: deps.Client is non-nil
// POST: the returned spec inserts into consultations and clears the draft
// when the thank-you view reverts
func NewConsultationSpec(deps ConsultationDeps) form.Spec {
	return form.Spec{
		Name:            "consultation",
		Fields:          []string{"name", "mobile", "location"},
		Required:        []string{"name", "mobile", "location"},
		RequiredMessage: RequiredFieldsMessage,
		Checks: []form.Check{
			func(_ context.Context, d form.Draft) error {
				if err := consultationFromDraft(d).Validate(); err != nil {
					field := "mobile"
					if err == domain.ErrUnknownLocation {
						field = "location"
					}
					return &form.ValidationError{Field: field, Message: err.Error()}
				}
				return nil
			},
		},
		Submit: func(ctx context.Context, d form.Draft) (backend.Row, error) {
			req := consultationFromDraft(d)
			rows, err := deps.Client.From(backend.TableConsultations).Insert(ctx, []backend.Row{req.Row()})
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return backend.Row(req.Row()), nil
			}
			return rows[0], nil
		},
		Describe:       DescribeConsultationError,
		SuccessMessage: ConsultationSuccessMessage,
		RevertAfter:    ConsultationRevertAfter,
		Clear:          form.ClearOnRevert,
		OnSuccess: func(ctx context.Context, d form.Draft, _ backend.Row) {
			if deps.Sender == nil || deps.LeadInbox == "" {
				return
			}
			if err := ExecuteNotifyLead(ctx, consultationFromDraft(d), NotifyLeadDeps{Sender: deps.Sender, To: deps.LeadInbox}); err != nil {
				slog.Error("lead_notification_failed", "error", err.Error())
			}
		},
	}
}

func consultationFromDraft(d form.Draft) domain.Request {
	return domain.Request{Name: d["name"], Mobile: d["mobile"], Location: d["location"]}.Normalize()
}

// NotifyLeadDeps are the collaborators of ExecuteNotifyLead.
type NotifyLeadDeps struct {
	Sender emailAdapter.Sender
	To     string
}

// ExecuteNotifyLead e-mails a new consultation request to the clinic inbox.
// PRE: req has been validated
// POST: one e-mail is handed to the sender
func ExecuteNotifyLead(ctx context.Context, req domain.Request, deps NotifyLeadDeps) error {
	var sb strings.Builder
	sb.WriteString("<h2>New consultation request</h2>\n<table>\n")
	fmt.Fprintf(&sb, "<tr><td>Name</td><td>%s</td></tr>\n", html.EscapeString(req.Name))
	fmt.Fprintf(&sb, "<tr><td>Mobile</td><td>%s</td></tr>\n", html.EscapeString(req.Mobile))
	fmt.Fprintf(&sb, "<tr><td>Location</td><td>%s</td></tr>\n", html.EscapeString(req.Location))
	sb.WriteString("</table>\n<p>Please call back within 24 hours.</p>\n")

	res, err := deps.Sender.Send(ctx, emailAdapter.SendRequest{
		To:      []string{deps.To},
		Subject: "Consultation request: " + req.Name + " (" + req.Location + ")",
		HTML:    sb.String(),
		Tags:    map[string]string{"category": "consultation_lead"},
	})
	if err != nil {
		return fmt.Errorf("send lead e-mail: %w", err)
	}
	slog.Info("lead_notified", "message_id", res.MessageID, "location", req.Location)
	return nil
}
