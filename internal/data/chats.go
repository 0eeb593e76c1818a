package data

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ChatsStore persists chat threads. Every call reads or writes the database;
// nothing is cached between calls.
type ChatsStore struct {
	coll *mongo.Collection
}

// NewChatsStore returns a ChatsStore using the given collection.
func NewChatsStore(coll *mongo.Collection) *ChatsStore {
	return &ChatsStore{coll: coll}
}

// Create inserts chat and returns it with its id and timestamps populated.
func (s *ChatsStore) Create(ctx context.Context, chat *Chat) (*Chat, error) {
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	if chat.LastActivity.IsZero() {
		chat.LastActivity = now
	}
	if chat.UnreadCounts == nil {
		// $inc on unreadCounts.<id> fails against a null field
		chat.UnreadCounts = UnreadCounts{}
	}

	res, err := s.coll.InsertOne(ctx, chat)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	chat.ID = res.InsertedID.(bson.ObjectID)
	return chat, nil
}

// FindByID returns the chat with the given id.
func (s *ChatsStore) FindByID(ctx context.Context, id bson.ObjectID) (*Chat, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindUnclaimedByID returns the chat only while it is still unclaimed.
func (s *ChatsStore) FindUnclaimedByID(ctx context.Context, id bson.ObjectID) (*Chat, error) {
	return s.findOne(ctx, bson.M{"_id": id, "status": StatusUnclaimed})
}

// FindActiveBetween returns an active chat whose participants include both users.
func (s *ChatsStore) FindActiveBetween(ctx context.Context, a, b bson.ObjectID) (*Chat, error) {
	return s.findOne(ctx, bson.M{
		"participants.user": bson.M{"$all": bson.A{a, b}},
		"status":            StatusActive,
	})
}

// ConditionalClaim atomically moves an unclaimed chat to active with adminID
// assigned and appended as a participant. The update only applies while the
// stored status is still unclaimed; otherwise ErrNotFound is returned and
// nothing changes. Concurrent callers therefore see exactly one winner.
func (s *ChatsStore) ConditionalClaim(ctx context.Context, chatID, adminID bson.ObjectID, at time.Time) (*Chat, error) {
	filter := bson.M{"_id": chatID, "status": StatusUnclaimed}
	update := bson.M{
		"$set": bson.M{
			"status":        StatusActive,
			"assignedAdmin": adminID,
			"lastActivity":  at,
			"updatedAt":     at,
		},
		"$addToSet": bson.M{"participants": Participant{User: adminID, Role: RoleAdmin}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var chat Chat
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&chat); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &chat, nil
}

// AppendParticipant adds p unless that user is already a member. A user is a
// participant at most once regardless of role, which $addToSet alone would not
// guarantee for differing roles.
func (s *ChatsStore) AppendParticipant(ctx context.Context, chatID bson.ObjectID, p Participant) error {
	filter := bson.M{"_id": chatID, "participants.user": bson.M{"$ne": p.User}}
	update := bson.M{
		"$push": bson.M{"participants": p},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.FindByID(ctx, chatID); err != nil {
			return err
		}
	}
	return nil
}

// SetLastMessage records messageID as the newest message (unless a newer one
// is already recorded), bumps lastActivity, and increments the unread counter
// of every user in unreadFor.
func (s *ChatsStore) SetLastMessage(ctx context.Context, chatID, messageID bson.ObjectID, at time.Time, unreadFor []bson.ObjectID) error {
	inc := bson.M{}
	for _, id := range unreadFor {
		inc["unreadCounts."+id.Hex()] = 1
	}
	bump := bson.M{"$set": bson.M{"updatedAt": at}}
	if len(inc) > 0 {
		bump["$inc"] = inc
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": chatID}, bump)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	// older writes racing a newer message must not move the pointer backwards
	filter := bson.M{
		"_id": chatID,
		"$or": bson.A{
			bson.M{"lastMessageAt": bson.M{"$exists": false}},
			bson.M{"lastMessageAt": bson.M{"$lte": at}},
		},
	}
	_, err = s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"lastMessage":   messageID,
		"lastMessageAt": at,
		"lastActivity":  at,
	}})
	return err
}

// SetUnreadCount sets userID's unread counter. Negative values are clamped to 0.
func (s *ChatsStore) SetUnreadCount(ctx context.Context, chatID, userID bson.ObjectID, value int) error {
	if value < 0 {
		value = 0
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{
		"$set": bson.M{"unreadCounts." + userID.Hex(): value},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveForUser returns active chats that include userID, most recent activity first.
func (s *ChatsStore) ListActiveForUser(ctx context.Context, userID bson.ObjectID) ([]*Chat, error) {
	return s.find(ctx, bson.M{"participants.user": userID, "status": StatusActive})
}

// ListUnclaimed returns every unclaimed chat, most recent activity first.
func (s *ChatsStore) ListUnclaimed(ctx context.Context) ([]*Chat, error) {
	return s.find(ctx, bson.M{"status": StatusUnclaimed})
}

func (s *ChatsStore) find(ctx context.Context, filter bson.M) ([]*Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastActivity", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	chats := []*Chat{}
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (s *ChatsStore) findOne(ctx context.Context, filter bson.M) (*Chat, error) {
	var chat Chat
	if err := s.coll.FindOne(ctx, filter).Decode(&chat); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &chat, nil
}
