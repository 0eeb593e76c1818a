// Package chat coordinates the chat lifecycle: creation, claiming, read state
// and the send path. Every operation re-reads the stores; no chat or
// participant state is kept between calls.
package chat

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/data"
	"github.com/PaulBabatuyi/support-chat/internal/events"
	"github.com/PaulBabatuyi/support-chat/internal/identity"
	"github.com/PaulBabatuyi/support-chat/internal/metrics"
)

// Actor is the verified identity behind a request or socket connection.
type Actor struct {
	ID    bson.ObjectID
	Role  string
	Email string
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool { return a.Role == data.RoleAdmin }

// ChatStore is the persistence contract for chats.
type ChatStore interface {
	Create(ctx context.Context, chat *data.Chat) (*data.Chat, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*data.Chat, error)
	FindUnclaimedByID(ctx context.Context, id bson.ObjectID) (*data.Chat, error)
	FindActiveBetween(ctx context.Context, a, b bson.ObjectID) (*data.Chat, error)
	ConditionalClaim(ctx context.Context, chatID, adminID bson.ObjectID, at time.Time) (*data.Chat, error)
	AppendParticipant(ctx context.Context, chatID bson.ObjectID, p data.Participant) error
	SetLastMessage(ctx context.Context, chatID, messageID bson.ObjectID, at time.Time, unreadFor []bson.ObjectID) error
	SetUnreadCount(ctx context.Context, chatID, userID bson.ObjectID, value int) error
	ListActiveForUser(ctx context.Context, userID bson.ObjectID) ([]*data.Chat, error)
	ListUnclaimed(ctx context.Context) ([]*data.Chat, error)
}

// MessageStore is the persistence contract for messages.
type MessageStore interface {
	Create(ctx context.Context, msg *data.Message) (*data.Message, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*data.Message, error)
	FindByChat(ctx context.Context, chatID bson.ObjectID, includeDeleted bool) ([]*data.Message, error)
	SoftDelete(ctx context.Context, id bson.ObjectID) error
}

// Directory is the user directory owned by the account service.
type Directory interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	ListAdminIDs(ctx context.Context) ([]bson.ObjectID, error)
}

// Notifier delivers lifecycle changes to connected sessions. Delivery is
// best-effort; implementations must not block on slow receivers.
type Notifier interface {
	// MessageCreated goes to the chat room as new_message and to every
	// participant's personal room as a chat_updated preview.
	MessageCreated(chatID bson.ObjectID, participants []bson.ObjectID, msg *MessageView, tempID string)
	// UnclaimedChatCreated goes to every admin's personal room.
	UnclaimedChatCreated(summary *Summary, adminIDs []bson.ObjectID)
	// ChatClaimed goes to the chat room and to the personal rooms of the
	// claiming admin, the client and every other admin.
	ChatClaimed(chat *ChatView, claimedBy bson.ObjectID, clientID *bson.ObjectID, adminIDs []bson.ObjectID)
	// ChatCreated goes to the personal rooms of the client and the admin.
	ChatCreated(chat *ChatView, adminID, clientID bson.ObjectID)
	// ChatRead acknowledges a read to the reader's personal room.
	ChatRead(userID, chatID bson.ObjectID)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Chats    ChatStore
	Messages MessageStore
	Users    Directory
	Names    *identity.Resolver
	Notifier Notifier
	Events   events.Publisher
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Service is the chat lifecycle coordinator.
type Service struct {
	chats    ChatStore
	messages MessageStore
	users    Directory
	names    *identity.Resolver
	notify   Notifier
	events   events.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// NewService wires a Service. Events and Logger default to no-ops.
func NewService(d Deps) *Service {
	s := &Service{
		chats:    d.Chats,
		messages: d.Messages,
		users:    d.Users,
		names:    d.Names,
		notify:   d.Notifier,
		events:   d.Events,
		metrics:  d.Metrics,
		log:      d.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// publish sends ev on a detached context so a cancelled request does not
// drop an event for a change that was already persisted.
func (s *Service) publish(ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish lifecycle event failed",
			zap.String("event", ev.Type),
			zap.String("chat_id", ev.ChatID),
			zap.Error(err),
		)
	}
}

// adminIDs re-queries the directory on every call. A failure is logged and
// yields no admin recipients; the change itself already succeeded.
func (s *Service) adminIDs(ctx context.Context) []bson.ObjectID {
	ids, err := s.users.ListAdminIDs(ctx)
	if err != nil {
		s.log.Error("list admins for fan-out", zap.Error(err))
		return nil
	}
	return ids
}
