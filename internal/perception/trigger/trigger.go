// Package trigger publishes re-evaluation requests for disputed perception
// attributes. Consumers are the AI pipelines that originally produced the
// perception; this side only fires the request.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	id "consentgate/pkg/domain"
)

// Publisher is the producer surface the trigger needs. The platform Kafka
// producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// message is the wire format of one re-evaluation request.
type message struct {
	UserID      string    `json:"userId"`
	Category    string    `json:"category"`
	Label       string    `json:"label"`
	RequestedAt time.Time `json:"requestedAt"`
}

// KafkaTrigger publishes re-evaluation requests keyed by user so requests
// for one user stay ordered.
type KafkaTrigger struct {
	producer Publisher
	topic    string
}

func NewKafkaTrigger(producer Publisher, topic string) *KafkaTrigger {
	return &KafkaTrigger{producer: producer, topic: topic}
}

func (t *KafkaTrigger) TriggerReevaluation(ctx context.Context, userID id.UserID, category, label string) error {
	payload, err := json.Marshal(message{
		UserID:      userID.String(),
		Category:    category,
		Label:       label,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal re-evaluation request: %w", err)
	}
	if err := t.producer.Publish(ctx, t.topic, []byte(userID.String()), payload); err != nil {
		return fmt.Errorf("publish re-evaluation request: %w", err)
	}
	return nil
}
