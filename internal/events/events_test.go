package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEncodeKeysByChat(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg, err := encode(Event{Type: ChatClaimed, ChatID: "c1", UserID: "u1", Status: "active", At: at})
	require.NoError(t, err)

	assert.Equal(t, "c1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, ChatClaimed, string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, "u1", got.UserID)
}

func TestEncodeStampsTime(t *testing.T) {
	msg, err := encode(Event{Type: ChatRead, ChatID: "c2"})
	require.NoError(t, err)
	assert.False(t, msg.Time.IsZero())
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: MessageSent}))
	assert.NoError(t, p.Close())
}

func TestKafkaPublisherDoesNotWaitForBroker(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	// nothing listens on port 1
	p := NewKafkaPublisher([]string{"127.0.0.1:1"}, "chat-events", zap.New(core))
	require.True(t, p.writer.Async)

	start := time.Now()
	require.NoError(t, p.Publish(context.Background(), Event{Type: MessageSent, ChatID: "c1"}))
	assert.Less(t, time.Since(start), time.Second)

	p.writer.Completion([]kafka.Message{{Key: []byte("c1")}, {Key: []byte("c2")}}, errors.New("broker unavailable"))
	p.writer.Completion([]kafka.Message{{Key: []byte("c3")}}, nil)

	entries := logs.FilterMessage("publish lifecycle events").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "chat-events", fields["topic"])
	assert.EqualValues(t, 2, fields["count"])
	assert.Equal(t, "broker unavailable", fields["error"])
}
