package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/reviewdb/apiserver/config"
)

// SMTPSender delivers mail over plain SMTP.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPSender constructs an SMTPSender from config.
func NewSMTPSender(cfg config.NotifyConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, errors.New("from address is required")
	}

	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}

	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		from: cfg.FromAddress,
		auth: auth,
	}, nil
}

func (s *SMTPSender) Send(_ context.Context, mail Mail) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", mail.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mail.Subject)
	msg.WriteString("\r\n")
	msg.WriteString(mail.Body)
	msg.WriteString("\r\n")

	return smtp.SendMail(s.addr, s.auth, s.from, []string{mail.To}, []byte(msg.String()))
}

func (s *SMTPSender) Close() error {
	return nil
}
