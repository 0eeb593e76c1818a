package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/support-chat/internal/data"
)

// UserRef is a populated user reference: {_id, email, role}.
type UserRef struct {
	ID    bson.ObjectID `json:"_id"`
	Email string        `json:"email,omitempty"`
	Role  string        `json:"role,omitempty"`
}

type ParticipantView struct {
	User UserRef `json:"user"`
	Role string  `json:"role"`
}

type SenderView struct {
	User UserRef `json:"user"`
	Name string  `json:"name"`
	Role string  `json:"role"`
}

// MessageView is a message with its sender populated.
type MessageView struct {
	ID        bson.ObjectID    `json:"_id"`
	Chat      bson.ObjectID    `json:"chat"`
	Sender    SenderView       `json:"sender"`
	Content   string           `json:"content"`
	Type      data.MessageType `json:"type"`
	IsDeleted bool             `json:"isDeleted"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ChatView is a chat with participants, assigned admin and last message
// populated. UnreadCount and the viewer-perspective Title are only filled by
// List.
type ChatView struct {
	ID            bson.ObjectID     `json:"_id"`
	Participants  []ParticipantView `json:"participants"`
	Title         string            `json:"title"`
	Type          data.ChatType     `json:"type"`
	Status        data.ChatStatus   `json:"status"`
	AssignedAdmin *UserRef          `json:"assignedAdmin"`
	LastMessage   *MessageView      `json:"lastMessage"`
	LastActivity  time.Time         `json:"lastActivity"`
	ChatSlug      string            `json:"chatSlug"`
	UnreadCount   *int              `json:"unreadCount,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Summary is the payload of new_unclaimed_chat.
type Summary struct {
	ID            bson.ObjectID     `json:"_id"`
	Title         string            `json:"title"`
	Status        data.ChatStatus   `json:"status"`
	AssignedAdmin *UserRef          `json:"assignedAdmin"`
	Participants  []ParticipantView `json:"participants"`
	LastMessage   *MessageView      `json:"lastMessage"`
	LastActivity  time.Time         `json:"lastActivity"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Summarize reduces a populated chat to the queue summary.
func Summarize(v *ChatView) *Summary {
	return &Summary{
		ID:            v.ID,
		Title:         v.Title,
		Status:        v.Status,
		AssignedAdmin: v.AssignedAdmin,
		Participants:  v.Participants,
		LastMessage:   v.LastMessage,
		LastActivity:  v.LastActivity,
		CreatedAt:     v.CreatedAt,
	}
}

// userRef loads the {_id, email, role} of id. A user that no longer exists
// is rendered with its id only.
func (s *Service) userRef(ctx context.Context, id bson.ObjectID) (UserRef, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return UserRef{ID: id}, nil
	}
	if err != nil {
		return UserRef{}, fmt.Errorf("load user %s: %w", id.Hex(), err)
	}
	return UserRef{ID: u.ID, Email: u.Email, Role: u.Role}, nil
}

func (s *Service) messageView(ctx context.Context, m *data.Message) (*MessageView, error) {
	ref, err := s.userRef(ctx, m.Sender.User)
	if err != nil {
		return nil, err
	}
	return &MessageView{
		ID:        m.ID,
		Chat:      m.Chat,
		Sender:    SenderView{User: ref, Name: m.Sender.Name, Role: m.Sender.Role},
		Content:   m.Content,
		Type:      m.Type,
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func (s *Service) chatView(ctx context.Context, c *data.Chat) (*ChatView, error) {
	v := &ChatView{
		ID:           c.ID,
		Participants: make([]ParticipantView, 0, len(c.Participants)),
		Title:        c.Title,
		Type:         c.Type,
		Status:       c.Status,
		LastActivity: c.LastActivity,
		ChatSlug:     c.ChatSlug,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	for _, p := range c.Participants {
		ref, err := s.userRef(ctx, p.User)
		if err != nil {
			return nil, err
		}
		v.Participants = append(v.Participants, ParticipantView{User: ref, Role: p.Role})
	}
	if c.AssignedAdmin != nil {
		ref, err := s.userRef(ctx, *c.AssignedAdmin)
		if err != nil {
			return nil, err
		}
		v.AssignedAdmin = &ref
	}
	if c.LastMessage != nil {
		m, err := s.messages.FindByID(ctx, *c.LastMessage)
		switch {
		case errors.Is(err, data.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("load last message: %w", err)
		case !m.IsDeleted:
			if v.LastMessage, err = s.messageView(ctx, m); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}
