package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/reviewdb/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQSender publishes mail as JSON to a durable queue for an
// external delivery worker.
type RabbitMQSender struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewRabbitMQSender constructs a RabbitMQ-backed sender from config.
func NewRabbitMQSender(cfg config.NotifyConfig) (*RabbitMQSender, error) {
	if strings.TrimSpace(cfg.AMQPURL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if strings.TrimSpace(cfg.AMQPQueue) == "" {
		return nil, errors.New("rabbitmq queue is required")
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(cfg.AMQPQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQSender{
		conn:    conn,
		channel: ch,
		queue:   cfg.AMQPQueue,
	}, nil
}

func (s *RabbitMQSender) Send(ctx context.Context, mail Mail) error {
	body, err := json.Marshal(mail)
	if err != nil {
		return err
	}

	return s.channel.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    newMessageID(),
		Body:         body,
	})
}

// Close closes the underlying channel and connection.
func (s *RabbitMQSender) Close() error {
	if s.channel != nil {
		_ = s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
