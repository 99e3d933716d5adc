package services

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/kendall-kelly/installations-scheduling-api/logger"
)

// LogPublisher writes messages to the log. Used when no topic is configured.
type LogPublisher struct {
	log logger.Logger
}

// NewLogPublisher creates a log-only publisher
func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, msg Message) error {
	p.log.Info("technician message composed",
		"technician_id", msg.TechnicianID,
		"phone", msg.Phone,
		"orders", len(msg.OrderIDs),
		"chat_link", msg.ChatLink)
	return nil
}

// PubSubPublisher publishes messages as JSON to a Pub/Sub topic for a
// downstream sender.
type PubSubPublisher struct {
	topic *pubsub.Topic
	log   logger.Logger
}

// NewPubSubPublisher binds a publisher to topicID on client
func NewPubSubPublisher(client *pubsub.Client, topicID string, log logger.Logger) *PubSubPublisher {
	return &PubSubPublisher{topic: client.Topic(topicID), log: log}
}

// Publish waits for the server to accept the message
func (p *PubSubPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"technician_id": msg.TechnicianID,
			"type":          "technician_jobs",
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.log.Debug("technician message published", "technician_id", msg.TechnicianID, "message_id", id)
	return nil
}

// Stop flushes pending messages
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}
