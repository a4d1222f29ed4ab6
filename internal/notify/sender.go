package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reviewdb/apiserver/config"
)

// Backend names accepted by NewSender.
const (
	BackendLog      = "log"
	BackendSMTP     = "smtp"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
)

// NewSender builds the configured mail transport.
func NewSender(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger) (Sender, error) {
	switch cfg.Backend {
	case "", BackendLog:
		return NewLogSender(logger), nil
	case BackendSMTP:
		return NewSMTPSender(cfg)
	case BackendRabbitMQ:
		return NewRabbitMQSender(cfg)
	case BackendPubSub:
		return NewPubSubSender(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
}
