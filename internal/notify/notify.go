// Package notify delivers outbound mail. Delivery is fire-and-forget from
// the caller's perspective: signup never fails because a mail could not be
// sent.
package notify

import (
	"context"
	"log/slog"
)

// Mail is one outbound message.
type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers mail through a concrete transport.
type Sender interface {
	Send(ctx context.Context, mail Mail) error
	Close() error
}

// LogSender writes mail to the log instead of delivering it. It is the
// default backend for development.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a LogSender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, mail Mail) error {
	s.logger.Info("outbound mail",
		"to", mail.To,
		"subject", mail.Subject,
		"body", mail.Body,
	)
	return nil
}

func (s *LogSender) Close() error {
	return nil
}
