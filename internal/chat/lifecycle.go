package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/apperr"
	"github.com/PaulBabatuyi/support-chat/internal/data"
	"github.com/PaulBabatuyi/support-chat/internal/events"
	"github.com/PaulBabatuyi/support-chat/internal/identity"
)

// slug collisions are retried with a fresh suffix
const slugAttempts = 3

// Initiate opens a chat for actor. Clients get a new unclaimed support chat
// announced to every admin. Admins must name a client and get the active chat
// they already share with that client, or a new one. created reports whether
// a chat was inserted.
func (s *Service) Initiate(ctx context.Context, actor Actor, clientID string) (view *ChatView, created bool, err error) {
	if actor.IsAdmin() {
		return s.initiateAsAdmin(ctx, actor, clientID)
	}
	view, err = s.initiateAsClient(ctx, actor)
	return view, err == nil, err
}

func (s *Service) initiateAsClient(ctx context.Context, actor Actor) (*ChatView, error) {
	client, err := s.users.GetUserByID(ctx, actor.ID)
	if errors.Is(err, data.ErrNotFound) {
		return nil, apperr.UserNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	name, err := s.names.NameOf(ctx, client)
	if err != nil {
		return nil, err
	}

	chat, err := s.create(ctx, &data.Chat{
		Participants: []data.Participant{{User: client.ID, Role: client.Role}},
		Title:        identity.SupportTitle(name),
		Type:         data.TypeSupport,
		Status:       data.StatusUnclaimed,
	})
	if err != nil {
		return nil, err
	}

	view, err := s.chatView(ctx, chat)
	if err != nil {
		return nil, err
	}

	s.notify.UnclaimedChatCreated(Summarize(view), s.adminIDs(ctx))
	s.publish(events.Event{Type: events.ChatCreated, ChatID: chat.ID.Hex(), UserID: actor.ID.Hex(), Status: string(chat.Status)})
	s.log.Info("unclaimed chat created", zap.String("chat_id", chat.ID.Hex()), zap.String("user_id", actor.ID.Hex()))
	return view, nil
}

func (s *Service) initiateAsAdmin(ctx context.Context, actor Actor, clientID string) (*ChatView, bool, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, false, apperr.Validation("Client ID is required when admin initiates chat")
	}
	cid, err := bson.ObjectIDFromHex(clientID)
	if err != nil {
		return nil, false, apperr.ClientNotFound()
	}
	client, err := s.users.GetUserByID(ctx, cid)
	if errors.Is(err, data.ErrNotFound) {
		return nil, false, apperr.ClientNotFound()
	}
	if err != nil {
		return nil, false, fmt.Errorf("load client: %w", err)
	}
	if client.IsAdmin() {
		return nil, false, apperr.ClientNotFound()
	}

	existing, err := s.chats.FindActiveBetween(ctx, actor.ID, client.ID)
	switch {
	case err == nil:
		view, err := s.chatView(ctx, existing)
		return view, false, err
	case !errors.Is(err, data.ErrNotFound):
		return nil, false, fmt.Errorf("find existing chat: %w", err)
	}

	name, err := s.names.NameOf(ctx, client)
	if err != nil {
		return nil, false, err
	}
	admin := actor.ID
	chat, err := s.create(ctx, &data.Chat{
		Participants: []data.Participant{
			{User: actor.ID, Role: data.RoleAdmin},
			{User: client.ID, Role: client.Role},
		},
		Title:         identity.DirectTitle(name),
		Type:          data.TypeGeneral,
		Status:        data.StatusActive,
		AssignedAdmin: &admin,
	})
	if err != nil {
		return nil, false, err
	}

	view, err := s.chatView(ctx, chat)
	if err != nil {
		return nil, false, err
	}

	s.notify.ChatCreated(view, actor.ID, client.ID)
	s.publish(events.Event{Type: events.ChatCreated, ChatID: chat.ID.Hex(), UserID: actor.ID.Hex(), Status: string(chat.Status)})
	s.log.Info("chat created by admin",
		zap.String("chat_id", chat.ID.Hex()),
		zap.String("user_id", actor.ID.Hex()),
		zap.String("client_id", client.ID.Hex()),
	)
	return view, true, nil
}

// create inserts chat with a unique slug derived from its title.
func (s *Service) create(ctx context.Context, chat *data.Chat) (*data.Chat, error) {
	for i := 0; i < slugAttempts; i++ {
		chat.ChatSlug = newSlug(chat.Title)
		created, err := s.chats.Create(ctx, chat)
		if errors.Is(err, data.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create chat: %w", err)
		}
		return created, nil
	}
	return nil, fmt.Errorf("create chat: no unique slug after %d attempts", slugAttempts)
}

func newSlug(title string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return slug.Make(title + "-" + suffix)
}

// Claim assigns an unclaimed chat to the calling admin. The store applies the
// change only while the chat is still unclaimed, so concurrent claims have a
// single winner; the others get CHAT_NOT_CLAIMABLE with the current status.
func (s *Service) Claim(ctx context.Context, actor Actor, chatID string) (*ChatView, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("Only admins can claim chats")
	}
	id, err := bson.ObjectIDFromHex(chatID)
	if err != nil {
		return nil, apperr.NotClaimable("unknown")
	}

	chat, err := s.chats.ConditionalClaim(ctx, id, actor.ID, s.now())
	if errors.Is(err, data.ErrNotFound) {
		s.metrics.Claim(false)
		status := "unknown"
		current, ferr := s.chats.FindByID(ctx, id)
		switch {
		case ferr == nil:
			status = string(current.Status)
		case !errors.Is(ferr, data.ErrNotFound):
			return nil, fmt.Errorf("read chat after lost claim: %w", ferr)
		}
		return nil, apperr.NotClaimable(status)
	}
	if err != nil {
		return nil, fmt.Errorf("claim chat: %w", err)
	}
	s.metrics.Claim(true)

	view, err := s.chatView(ctx, chat)
	if err != nil {
		return nil, err
	}

	var clientID *bson.ObjectID
	if p, ok := chat.Client(); ok {
		clientID = &p.User
	}
	s.notify.ChatClaimed(view, actor.ID, clientID, s.adminIDs(ctx))
	s.publish(events.Event{Type: events.ChatClaimed, ChatID: chat.ID.Hex(), UserID: actor.ID.Hex(), Status: string(chat.Status)})
	s.log.Info("chat claimed", zap.String("chat_id", chat.ID.Hex()), zap.String("user_id", actor.ID.Hex()))
	return view, nil
}

// MarkRead resets actor's unread counter. Unknown chats and non-members are
// both refused with FORBIDDEN.
func (s *Service) MarkRead(ctx context.Context, actor Actor, chatID string) error {
	chat, err := s.memberChat(ctx, actor, chatID, "Access denied to this chat")
	if errors.Is(err, data.ErrNotFound) {
		return apperr.Forbidden("Access denied to this chat")
	}
	if err != nil {
		return err
	}

	if err := s.chats.SetUnreadCount(ctx, chat.ID, actor.ID, 0); err != nil {
		return fmt.Errorf("reset unread count: %w", err)
	}
	s.notify.ChatRead(actor.ID, chat.ID)
	s.publish(events.Event{Type: events.ChatRead, ChatID: chat.ID.Hex(), UserID: actor.ID.Hex()})
	return nil
}

// CanJoin reports whether actor may subscribe to the chat's room: members
// always can, admins also while the chat is still unclaimed. It returns the
// parsed chat id so callers key rooms by its canonical hex form.
func (s *Service) CanJoin(ctx context.Context, actor Actor, chatID string) (bson.ObjectID, error) {
	denied := apperr.Forbidden("Access denied to chat")
	id, err := bson.ObjectIDFromHex(chatID)
	if err != nil {
		return bson.ObjectID{}, denied
	}

	if actor.IsAdmin() {
		_, err := s.chats.FindUnclaimedByID(ctx, id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, data.ErrNotFound) {
			return bson.ObjectID{}, fmt.Errorf("load unclaimed chat: %w", err)
		}
	}

	chat, err := s.chats.FindByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return bson.ObjectID{}, denied
	}
	if err != nil {
		return bson.ObjectID{}, fmt.Errorf("load chat: %w", err)
	}
	if !chat.HasParticipant(actor.ID) {
		return bson.ObjectID{}, denied
	}
	return id, nil
}

// List returns the caller's active chats, most recent first, each titled
// after the other participant and carrying the caller's unread count.
func (s *Service) List(ctx context.Context, actor Actor) ([]*ChatView, error) {
	chats, err := s.chats.ListActiveForUser(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	out := make([]*ChatView, 0, len(chats))
	for _, c := range chats {
		v, err := s.chatView(ctx, c)
		if err != nil {
			return nil, err
		}
		if v.Title, err = s.viewerTitle(ctx, actor, c); err != nil {
			return nil, err
		}
		unread := c.UnreadCounts.Get(actor.ID)
		v.UnreadCount = &unread
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) viewerTitle(ctx context.Context, actor Actor, c *data.Chat) (string, error) {
	other, ok := c.Counterpart(actor.ID)
	if !ok {
		return "Chat", nil
	}
	if other.Role == data.RoleAdmin {
		return identity.AdminLabel, nil
	}
	name, err := s.names.DisplayName(ctx, other.User)
	if errors.Is(err, data.ErrNotFound) {
		return "Chat", nil
	}
	return name, err
}

// ListUnclaimed is the admin queue: unclaimed chats, newest activity first.
func (s *Service) ListUnclaimed(ctx context.Context, actor Actor) ([]*ChatView, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("Only admins can view unclaimed chats")
	}
	chats, err := s.chats.ListUnclaimed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unclaimed chats: %w", err)
	}
	out := make([]*ChatView, 0, len(chats))
	for _, c := range chats {
		v, err := s.chatView(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// memberChat loads chatID and checks that actor participates in it. A
// malformed or unknown id is reported as data.ErrNotFound.
func (s *Service) memberChat(ctx context.Context, actor Actor, chatID, denied string) (*data.Chat, error) {
	id, err := bson.ObjectIDFromHex(chatID)
	if err != nil {
		return nil, data.ErrNotFound
	}
	chat, err := s.chats.FindByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if !chat.HasParticipant(actor.ID) {
		return nil, apperr.Forbidden(denied)
	}
	return chat, nil
}
