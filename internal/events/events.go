// Package events publishes chat lifecycle events for downstream consumers
// (notifications, analytics). Publishing happens after the change is
// persisted and is best-effort: a failed publish never undoes the change.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types.
const (
	ChatCreated = "chat.created"
	ChatClaimed = "chat.claimed"
	MessageSent = "message.sent"
	ChatRead    = "chat.read"
)

// Event is the payload written to the lifecycle topic.
type Event struct {
	Type      string    `json:"type"`
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher sends lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// KafkaPublisher writes events to a Kafka topic keyed by chat id, so the
// events of one chat land on one partition in order. Writes are batched in
// the background; delivery failures are only logged.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher returns a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{log: log}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

// Publish queues ev and returns without waiting for the broker.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	p.log.Error("publish lifecycle events",
		zap.String("topic", p.writer.Topic),
		zap.Int("count", len(msgs)),
		zap.Error(err),
	)
}

// Close flushes pending writes and releases the connection.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }

func encode(ev Event) (kafka.Message, error) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.ChatID),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}, nil
}
