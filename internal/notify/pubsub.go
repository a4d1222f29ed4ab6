package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/reviewdb/apiserver/config"
	"google.golang.org/api/option"
)

// PubSubSender publishes mail as JSON to a Pub/Sub topic for an external
// delivery worker.
type PubSubSender struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSender constructs a Pub/Sub-backed sender from config.
func NewPubSubSender(ctx context.Context, cfg config.NotifyConfig) (*PubSubSender, error) {
	if strings.TrimSpace(cfg.PubSubProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}
	if strings.TrimSpace(cfg.PubSubTopic) == "" {
		return nil, errors.New("pubsub topic is required")
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(cfg.PubSubCredentialsFile); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID, opts...)
	if err != nil {
		return nil, err
	}

	topic := client.Topic(cfg.PubSubTopic)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, cfg.PubSubTopic)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	return &PubSubSender{client: client, topic: topic}, nil
}

func (s *PubSubSender) Send(ctx context.Context, mail Mail) error {
	body, err := json.Marshal(mail)
	if err != nil {
		return err
	}

	result := s.topic.Publish(ctx, &pubsub.Message{Data: body})
	_, err = result.Get(ctx)
	return err
}

// Close stops the topic publisher and closes the client.
func (s *PubSubSender) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
