// Package memory holds process-local implementations of the data stores.
// They back STORE_BACKEND=memory and the unit tests; contents are lost on exit.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/support-chat/internal/data"
	"github.com/PaulBabatuyi/support-chat/internal/normalize"
)

// Backend bundles one instance of every store.
type Backend struct {
	Users    *UsersStore
	Profiles *ProfilesStore
	Chats    *ChatsStore
	Messages *MessagesStore
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		Users:    NewUsersStore(),
		Profiles: NewProfilesStore(),
		Chats:    NewChatsStore(),
		Messages: NewMessagesStore(),
	}
}

// UsersStore is an in-memory user directory.
type UsersStore struct {
	mu      sync.RWMutex
	byID    map[bson.ObjectID]data.User
	byEmail map[string]bson.ObjectID
}

func NewUsersStore() *UsersStore {
	return &UsersStore{
		byID:    make(map[bson.ObjectID]data.User),
		byEmail: make(map[string]bson.ObjectID),
	}
}

// CreateUser stores user, assigning an id when it has none.
func (s *UsersStore) CreateUser(_ context.Context, user *data.User) (*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = normalize.Email(user.Email)
	if _, ok := s.byEmail[user.Email]; ok {
		return nil, data.ErrDuplicate
	}
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	s.byID[user.ID] = *user
	s.byEmail[user.Email] = user.ID
	return user, nil
}

func (s *UsersStore) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalize.Email(email)]
	if !ok {
		return nil, data.ErrNotFound
	}
	u := s.byID[id]
	return &u, nil
}

func (s *UsersStore) GetUserByID(_ context.Context, id bson.ObjectID) (*data.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return &u, nil
}

func (s *UsersStore) ListAdminIDs(_ context.Context) ([]bson.ObjectID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := []bson.ObjectID{}
	for id, u := range s.byID {
		if u.Role == data.RoleAdmin {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	return ids, nil
}

// ProfilesStore keeps client profiles keyed by owning user.
type ProfilesStore struct {
	mu          sync.RWMutex
	individuals map[bson.ObjectID]data.Individual
	corporates  map[bson.ObjectID]data.Corporate
}

func NewProfilesStore() *ProfilesStore {
	return &ProfilesStore{
		individuals: make(map[bson.ObjectID]data.Individual),
		corporates:  make(map[bson.ObjectID]data.Corporate),
	}
}

// PutIndividual stores or replaces the individual profile of p.User.
func (s *ProfilesStore) PutIndividual(p data.Individual) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = bson.NewObjectID()
	}
	s.individuals[p.User] = p
}

// PutCorporate stores or replaces the corporate profile of p.User.
func (s *ProfilesStore) PutCorporate(p data.Corporate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = bson.NewObjectID()
	}
	s.corporates[p.User] = p
}

func (s *ProfilesStore) GetIndividualByUser(_ context.Context, userID bson.ObjectID) (*data.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.individuals[userID]
	if !ok {
		return nil, data.ErrNotFound
	}
	return &p, nil
}

func (s *ProfilesStore) GetCorporateByUser(_ context.Context, userID bson.ObjectID) (*data.Corporate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.corporates[userID]
	if !ok {
		return nil, data.ErrNotFound
	}
	return &p, nil
}

// ChatsStore is an in-memory chat table. A single mutex serializes writes,
// which makes ConditionalClaim a compare-and-set.
type ChatsStore struct {
	mu    sync.RWMutex
	chats map[bson.ObjectID]*data.Chat
	slugs map[string]bson.ObjectID
}

func NewChatsStore() *ChatsStore {
	return &ChatsStore{
		chats: make(map[bson.ObjectID]*data.Chat),
		slugs: make(map[string]bson.ObjectID),
	}
}

func (s *ChatsStore) Create(_ context.Context, chat *data.Chat) (*data.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chat.ChatSlug != "" {
		if _, ok := s.slugs[chat.ChatSlug]; ok {
			return nil, data.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	chat.ID = bson.NewObjectID()
	chat.CreatedAt, chat.UpdatedAt = now, now
	if chat.LastActivity.IsZero() {
		chat.LastActivity = now
	}
	if chat.UnreadCounts == nil {
		chat.UnreadCounts = data.UnreadCounts{}
	}

	s.chats[chat.ID] = cloneChat(chat)
	if chat.ChatSlug != "" {
		s.slugs[chat.ChatSlug] = chat.ID
	}
	return chat, nil
}

func (s *ChatsStore) FindByID(_ context.Context, id bson.ObjectID) (*data.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return cloneChat(c), nil
}

func (s *ChatsStore) FindUnclaimedByID(_ context.Context, id bson.ObjectID) (*data.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok || c.Status != data.StatusUnclaimed {
		return nil, data.ErrNotFound
	}
	return cloneChat(c), nil
}

// FindActiveBetween returns the oldest active chat containing both users.
func (s *ChatsStore) FindActiveBetween(_ context.Context, a, b bson.ObjectID) (*data.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *data.Chat
	for _, c := range s.chats {
		if c.Status != data.StatusActive || !c.HasParticipant(a) || !c.HasParticipant(b) {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			found = c
		}
	}
	if found == nil {
		return nil, data.ErrNotFound
	}
	return cloneChat(found), nil
}

func (s *ChatsStore) ConditionalClaim(_ context.Context, chatID, adminID bson.ObjectID, at time.Time) (*data.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok || c.Status != data.StatusUnclaimed {
		return nil, data.ErrNotFound
	}
	c.Status = data.StatusActive
	admin := adminID
	c.AssignedAdmin = &admin
	c.LastActivity = at
	c.UpdatedAt = at
	p := data.Participant{User: adminID, Role: data.RoleAdmin}
	if !slices.Contains(c.Participants, p) {
		c.Participants = append(c.Participants, p)
	}
	return cloneChat(c), nil
}

func (s *ChatsStore) AppendParticipant(_ context.Context, chatID bson.ObjectID, p data.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return data.ErrNotFound
	}
	if !c.HasParticipant(p.User) {
		c.Participants = append(c.Participants, p)
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *ChatsStore) SetLastMessage(_ context.Context, chatID, messageID bson.ObjectID, at time.Time, unreadFor []bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return data.ErrNotFound
	}
	for _, id := range unreadFor {
		c.UnreadCounts[id.Hex()]++
	}
	c.UpdatedAt = at
	if c.LastMessageAt == nil || !at.Before(*c.LastMessageAt) {
		mid, t := messageID, at
		c.LastMessage = &mid
		c.LastMessageAt = &t
		c.LastActivity = at
	}
	return nil
}

func (s *ChatsStore) SetUnreadCount(_ context.Context, chatID, userID bson.ObjectID, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return data.ErrNotFound
	}
	c.UnreadCounts[userID.Hex()] = max(value, 0)
	return nil
}

func (s *ChatsStore) ListActiveForUser(_ context.Context, userID bson.ObjectID) ([]*data.Chat, error) {
	return s.list(func(c *data.Chat) bool {
		return c.Status == data.StatusActive && c.HasParticipant(userID)
	}), nil
}

func (s *ChatsStore) ListUnclaimed(_ context.Context) ([]*data.Chat, error) {
	return s.list(func(c *data.Chat) bool { return c.Status == data.StatusUnclaimed }), nil
}

func (s *ChatsStore) list(keep func(*data.Chat) bool) []*data.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*data.Chat{}
	for _, c := range s.chats {
		if keep(c) {
			out = append(out, cloneChat(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out
}

func cloneChat(c *data.Chat) *data.Chat {
	out := *c
	out.Participants = slices.Clone(c.Participants)
	out.UnreadCounts = make(data.UnreadCounts, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	if c.AssignedAdmin != nil {
		id := *c.AssignedAdmin
		out.AssignedAdmin = &id
	}
	if c.LastMessage != nil {
		id := *c.LastMessage
		out.LastMessage = &id
	}
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		out.LastMessageAt = &t
	}
	return &out
}

// MessagesStore keeps messages per chat in insertion order.
type MessagesStore struct {
	mu     sync.RWMutex
	byChat map[bson.ObjectID][]*data.Message
	byID   map[bson.ObjectID]*data.Message
	last   time.Time
}

func NewMessagesStore() *MessagesStore {
	return &MessagesStore{
		byChat: make(map[bson.ObjectID][]*data.Message),
		byID:   make(map[bson.ObjectID]*data.Message),
	}
}

// Create appends msg. CreatedAt never goes backwards, so insertion order and
// (createdAt, _id) order agree.
func (s *MessagesStore) Create(_ context.Context, msg *data.Message) (*data.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now

	msg.ID = bson.NewObjectID()
	msg.CreatedAt, msg.UpdatedAt = now, now
	if msg.Type == "" {
		msg.Type = data.MessageText
	}
	stored := *msg
	s.byChat[msg.Chat] = append(s.byChat[msg.Chat], &stored)
	s.byID[msg.ID] = &stored
	return msg, nil
}

func (s *MessagesStore) FindByID(_ context.Context, id bson.ObjectID) (*data.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (s *MessagesStore) SoftDelete(_ context.Context, id bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return data.ErrNotFound
	}
	m.IsDeleted = true
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MessagesStore) FindByChat(_ context.Context, chatID bson.ObjectID, includeDeleted bool) ([]*data.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*data.Message{}
	for _, m := range s.byChat[chatID] {
		if m.IsDeleted && !includeDeleted {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}
