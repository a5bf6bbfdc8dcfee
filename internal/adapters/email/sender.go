// Package email delivers the clinic's notification e-mails.
package email

import (
	"context"
	"time"
)

// SendRequest is one outgoing e-mail.
type SendRequest struct {
	To      []string
	From    string // the sender's default when empty
	Subject string
	HTML    string
	ReplyTo string
	// Tags label the message at the provider, e.g. {"category": "consultation_lead"}.
	// Names and values are limited to ASCII letters, digits, '_' and '-'.
	Tags map[string]string
}

// SendResult is the provider's acknowledgement.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender hands e-mails to a delivery provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
