package email

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// NoopSender logs e-mails instead of delivering them. main uses it when no
// Resend key is configured.
type NoopSender struct {
	sent atomic.Int64
}

// NewNoopSender creates a NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send logs req and reports success.
func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	s.sent.Add(1)
	id := "noop-" + uuid.NewString()
	slog.Info("noop_email_send", "message_id", id, "to_count", len(req.To), "subject", req.Subject)
	return SendResult{MessageID: id, SentAt: time.Now()}, nil
}

// Sent returns how many e-mails were swallowed.
func (s *NoopSender) Sent() int64 {
	return s.sent.Load()
}
