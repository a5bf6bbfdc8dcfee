package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/resend/resend-go/v2"
)

// ResendSender sends e-mails through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	now    func() time.Time
}

// ResendOption customises a ResendSender.
type ResendOption func(*ResendSender) error

// WithBaseURL points the sender at another Resend-compatible endpoint.
func WithBaseURL(raw string) ResendOption {
	return func(s *ResendSender) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse resend base url: %w", err)
		}
		s.client.BaseURL = u
		return nil
	}
}

// NewResendSender creates a ResendSender with a default from address.
// PRE: apiKey is a valid Resend API key; from is a valid sender address
// POST: returns a ready-to-use sender, or the first option error
func NewResendSender(apiKey, from string, opts ...ResendOption) (*ResendSender, error) {
	s := &ResendSender{
		client: resend.NewCustomClient(&http.Client{Timeout: 10 * time.Second}, apiKey),
		from:   from,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Send sends one e-mail.
// PRE: req has at least one recipient and a subject
// POST: the e-mail is queued at Resend; the result carries its message id
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	from := req.From
	if from == "" {
		from = s.from
	}

	params := &resend.SendEmailRequest{
		From:    from,
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		ReplyTo: req.ReplyTo,
		Tags:    resendTags(req.Tags),
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		slog.Error("resend_send_failed", "error", err, "to_count", len(req.To), "subject", req.Subject)
		return SendResult{}, fmt.Errorf("resend send failed: %w", err)
	}

	slog.Info("resend_sent", "message_id", sent.Id, "subject", req.Subject)
	return SendResult{MessageID: sent.Id, SentAt: s.now()}, nil
}

// resendTags converts tags in name order so requests are reproducible.
func resendTags(tags map[string]string) []resend.Tag {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]resend.Tag, 0, len(names))
	for _, name := range names {
		out = append(out, resend.Tag{Name: name, Value: tags[name]})
	}
	return out
}
