package data

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessagesStore provides message database operations. Messages are appended
// and never physically removed; IsDeleted hides them from reads.
type MessagesStore struct {
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// Create inserts msg, assigning its id and creation time.
func (m *MessagesStore) Create(ctx context.Context, msg *Message) (*Message, error) {
	// BSON datetimes carry millisecond precision; truncate so the returned
	// value equals what a later read sees.
	now := time.Now().UTC().Truncate(time.Millisecond)
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if msg.Type == "" {
		msg.Type = MessageText
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = result.InsertedID.(bson.ObjectID)
	return msg, nil
}

// FindByID returns a single message.
func (m *MessagesStore) FindByID(ctx context.Context, id bson.ObjectID) (*Message, error) {
	var msg Message
	if err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// SoftDelete hides a message from reads.
func (m *MessagesStore) SoftDelete(ctx context.Context, id bson.ObjectID) error {
	update := bson.M{"$set": bson.M{"isDeleted": true, "updatedAt": time.Now().UTC()}}
	result, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByChat returns the messages of a chat oldest first. Soft-deleted
// messages are skipped unless includeDeleted is set. Ties on createdAt are
// broken by _id, which grows with insertion order.
func (m *MessagesStore) FindByChat(ctx context.Context, chatID bson.ObjectID, includeDeleted bool) ([]*Message, error) {
	filter := bson.M{"chat": chatID}
	if !includeDeleted {
		filter["isDeleted"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []*Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
