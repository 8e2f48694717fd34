// Package queue carries collection and website tasks between the trigger
// surface and the workers. Delivery is at-least-once: a leased message that is
// neither acked nor nacked becomes visible again after its lease expires.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Topics.
const (
	TopicCollection = "collection"
	TopicWebsite    = "website"
	// TopicFederal receives company registry lookups for validated CNPJs.
	TopicFederal = "federal"
)

// Message is one leased task.
type Message struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	// Attempts counts deliveries including the current one.
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return eris.Wrapf(err, "queue: decode message %s", m.ID)
	}
	return nil
}

// Publisher enqueues tasks.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Consumer leases and settles tasks.
type Consumer interface {
	// Receive leases up to max visible messages from topic.
	Receive(ctx context.Context, topic string, max int) ([]Message, error)
	// Ack removes a message.
	Ack(ctx context.Context, id string) error
	// Nack makes a message visible again after delay.
	Nack(ctx context.Context, id string, delay time.Duration, reason string) error
	// DeadLetter parks a message so it is never delivered again.
	DeadLetter(ctx context.Context, id string, reason string) error
}

// Queue is both sides.
type Queue interface {
	Publisher
	Consumer
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "queue: marshal payload")
	}
	return b, nil
}
