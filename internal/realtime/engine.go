package realtime

import (
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/chat"
)

// Engine routes lifecycle notifications to hub rooms. It implements
// chat.Notifier.
type Engine struct {
	hub *Hub
	log *zap.Logger
}

var _ chat.Notifier = (*Engine)(nil)

// NewEngine returns an Engine emitting through hub.
func NewEngine(hub *Hub, log *zap.Logger) *Engine {
	return &Engine{hub: hub, log: log}
}

// MessageCreated updates open threads through the chat room and list
// previews through every participant's personal room.
func (e *Engine) MessageCreated(chatID bson.ObjectID, participants []bson.ObjectID, msg *chat.MessageView, tempID string) {
	e.emit(EventNewMessage, NewMessage{ChatID: chatID, Message: msg, TempID: tempID},
		Targets{Chats: []string{chatID.Hex()}})
	e.emit(EventChatUpdated, ChatPreview{ID: chatID, LastMessage: msg, LastActivity: msg.CreatedAt},
		Targets{Users: hexes(participants)})
}

func (e *Engine) UnclaimedChatCreated(summary *chat.Summary, adminIDs []bson.ObjectID) {
	e.emit(EventNewUnclaimedChat, summary, Targets{Users: hexes(adminIDs)})
}

func (e *Engine) ChatClaimed(v *chat.ChatView, claimedBy bson.ObjectID, clientID *bson.ObjectID, adminIDs []bson.ObjectID) {
	users := append([]string{claimedBy.Hex()}, hexes(adminIDs)...)
	if clientID != nil {
		users = append(users, clientID.Hex())
	}
	e.emit(EventChatClaimed, v, Targets{Users: users, Chats: []string{v.ID.Hex()}})

	// admins who previewed the chat while it was unclaimed lose the room
	members := make([]string, 0, len(v.Participants))
	for _, p := range v.Participants {
		members = append(members, p.User.ID.Hex())
	}
	if n := e.hub.PruneChat(v.ID.Hex(), members); n > 0 {
		e.log.Debug("pruned chat room", zap.String("chat_id", v.ID.Hex()), zap.Int("sessions", n))
	}
}

func (e *Engine) ChatCreated(v *chat.ChatView, adminID, clientID bson.ObjectID) {
	e.emit(EventChatCreated, v, Targets{Users: []string{clientID.Hex(), adminID.Hex()}})
}

func (e *Engine) ChatRead(userID, chatID bson.ObjectID) {
	e.emit(EventChatRead, ChatReadAck{ChatID: chatID}, Targets{Users: []string{userID.Hex()}})
}

func (e *Engine) emit(event string, payload any, t Targets) {
	frame, err := Encode(event, payload)
	if err != nil {
		e.log.Error("encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	n := e.hub.Emit(frame, t)
	e.log.Debug("emitted", zap.String("event", event), zap.Int("sessions", n))
}

func hexes(ids []bson.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}
