package chat

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/apperr"
	"github.com/PaulBabatuyi/support-chat/internal/data"
	"github.com/PaulBabatuyi/support-chat/internal/events"
	"github.com/PaulBabatuyi/support-chat/internal/identity"
	"github.com/PaulBabatuyi/support-chat/internal/normalize"
)

// MaxContentLength bounds a message in characters.
const MaxContentLength = 5000

// Messages returns the chat history oldest first, soft-deleted messages excluded.
func (s *Service) Messages(ctx context.Context, actor Actor, chatID string) ([]*MessageView, error) {
	chat, err := s.memberChat(ctx, actor, chatID, "Access denied to this chat")
	if errors.Is(err, data.ErrNotFound) {
		return nil, apperr.ChatNotFound()
	}
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.FindByChat(ctx, chat.ID, false)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	out := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		v, err := s.messageView(ctx, m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Send persists a text message from actor and fans it out. The sender must be
// a participant when the chat is read; otherwise nothing is written and no
// one is notified. The sender's name is a snapshot taken now. tempID is the
// client's correlation id and is only echoed back.
func (s *Service) Send(ctx context.Context, actor Actor, chatID, content, tempID string) (*MessageView, error) {
	content = normalize.Content(content)
	if content == "" {
		return nil, apperr.Validation("Message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, apperr.Validation(fmt.Sprintf("Message content exceeds %d characters", MaxContentLength))
	}

	chat, err := s.memberChat(ctx, actor, chatID, "Access denied to chat")
	if errors.Is(err, data.ErrNotFound) {
		return nil, apperr.Forbidden("Access denied to chat")
	}
	if err != nil {
		return nil, err
	}

	name, err := s.senderName(ctx, actor)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(ctx, &data.Message{
		Chat:    chat.ID,
		Sender:  data.Sender{User: actor.ID, Name: name, Role: actor.Role},
		Content: content,
		Type:    data.MessageText,
	})
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	participants := chat.ParticipantIDs()
	unreadFor := make([]bson.ObjectID, 0, len(participants))
	for _, id := range participants {
		if id != actor.ID {
			unreadFor = append(unreadFor, id)
		}
	}
	if err := s.chats.SetLastMessage(ctx, chat.ID, msg.ID, msg.CreatedAt, unreadFor); err != nil {
		// hide the orphan from history
		if derr := s.messages.SoftDelete(ctx, msg.ID); derr != nil {
			s.log.Error("message saved but chat not updated and rollback failed",
				zap.String("chat_id", chat.ID.Hex()),
				zap.String("message_id", msg.ID.Hex()),
				zap.Error(err),
				zap.NamedError("rollback_error", derr),
			)
		}
		return nil, fmt.Errorf("update chat: %w", err)
	}
	s.metrics.MessageSent()

	view, err := s.messageView(ctx, msg)
	if err != nil {
		return nil, err
	}

	s.notify.MessageCreated(chat.ID, participants, view, tempID)
	s.publish(events.Event{
		Type:      events.MessageSent,
		ChatID:    chat.ID.Hex(),
		UserID:    actor.ID.Hex(),
		MessageID: msg.ID.Hex(),
		At:        msg.CreatedAt,
	})
	s.log.Debug("message sent", zap.String("chat_id", chat.ID.Hex()), zap.String("user_id", actor.ID.Hex()))
	return view, nil
}

func (s *Service) senderName(ctx context.Context, actor Actor) (string, error) {
	if actor.IsAdmin() {
		return identity.AdminLabel, nil
	}
	name, err := s.names.DisplayName(ctx, actor.ID)
	if errors.Is(err, data.ErrNotFound) {
		return actor.Email, nil
	}
	return name, err
}
