// Package realtime is the socket side of the chat: it authenticates
// connections, keeps the room subscriptions and fans lifecycle events out to
// connected sessions.
//
// Frames are JSON text messages shaped {"event": name, "data": payload} in
// both directions.
package realtime

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/support-chat/internal/chat"
)

// Inbound events.
const (
	EventJoinChat         = "join_chat"
	EventLeaveChat        = "leave_chat"
	EventSendMessage      = "send_message"
	EventMarkMessagesRead = "mark_messages_read"
)

// inbound reports whether name is an event clients may send.
func inbound(name string) bool {
	switch name {
	case EventJoinChat, EventLeaveChat, EventSendMessage, EventMarkMessagesRead:
		return true
	}
	return false
}

// Outbound events.
const (
	EventNewMessage       = "new_message"
	EventChatUpdated      = "chat_updated"
	EventNewUnclaimedChat = "new_unclaimed_chat"
	EventChatCreated      = "chat_created"
	EventChatClaimed      = "chat_claimed"
	EventChatRead         = "chat_read"
	EventJoinedChat       = "joined_chat"
	EventError            = "error"
)

// Frame is one message on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ChatRef struct {
	ChatID string `json:"chatId" validate:"required,max=64"`
}

type SendMessage struct {
	ChatID  string `json:"chatId" validate:"required,max=64"`
	Content string `json:"content"`
	TempID  string `json:"tempId"`
}

type NewMessage struct {
	ChatID  bson.ObjectID     `json:"chatId"`
	Message *chat.MessageView `json:"message"`
	TempID  string            `json:"tempId,omitempty"`
}

// ChatPreview is the list-view update sent to every participant.
type ChatPreview struct {
	ID           bson.ObjectID     `json:"_id"`
	LastMessage  *chat.MessageView `json:"lastMessage"`
	LastActivity time.Time         `json:"lastActivity"`
}

type ChatReadAck struct {
	ChatID bson.ObjectID `json:"chatId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Encode builds a frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
