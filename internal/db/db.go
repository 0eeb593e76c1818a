// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "client_portal"

// Client wraps mongo.Client and exposes the collections of the portal database.
type Client struct {
	// client is safe for concurrent use and shared by every store
	client *mongo.Client

	// db holds users and profiles (owned by the account service) as well as
	// chats and messages
	db *mongo.Database
}

// New connects to MongoDB, verifies the connection with a ping and returns a
// Client bound to database.
func New(ctx context.Context, mongoURI, database string) (*Client, error) {
	if database == "" {
		database = DefaultDatabase
	}

	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	// Connect does not dial; the ping below is the real check
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database(database),
	}, nil
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// IndividualsCollection returns the individual client profiles.
func (c *Client) IndividualsCollection() *mongo.Collection {
	return c.db.Collection("individuals")
}

// CorporatesCollection returns the corporate client profiles.
func (c *Client) CorporatesCollection() *mongo.Collection {
	return c.db.Collection("corporates")
}

// ChatsCollection returns the chats collection.
func (c *Client) ChatsCollection() *mongo.Collection {
	return c.db.Collection("chats")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// Ping checks that the primary is reachable. Used by health probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the chat queries rely on. It is safe to
// call on every start; existing indexes are left alone.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// ===== USERS =====
	// unique email backs GetUserByEmail and the admin seed
	usersIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := c.UsersCollection().Indexes().CreateOne(ctx, usersIndex); err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	// ===== CHATS =====
	chatIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chatSlug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// ListActiveForUser and FindActiveBetween
			Keys: bson.D{{Key: "participants.user", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			// ListUnclaimed, newest first
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "lastActivity", Value: -1}},
		},
	}
	if _, err := c.ChatsCollection().Indexes().CreateMany(ctx, chatIndexes); err != nil {
		return fmt.Errorf("failed to create chat indexes: %w", err)
	}

	// ===== MESSAGES =====
	// history reads are per chat in (createdAt, _id) order
	messageIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "chat", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}},
	}
	if _, err := c.MessagesCollection().Indexes().CreateOne(ctx, messageIndex); err != nil {
		return fmt.Errorf("failed to create message index: %w", err)
	}

	// profiles are looked up by owning user
	profileIndex := mongo.IndexModel{Keys: bson.D{{Key: "user", Value: 1}}}
	if _, err := c.IndividualsCollection().Indexes().CreateOne(ctx, profileIndex); err != nil {
		return fmt.Errorf("failed to create individuals index: %w", err)
	}
	if _, err := c.CorporatesCollection().Indexes().CreateOne(ctx, profileIndex); err != nil {
		return fmt.Errorf("failed to create corporates index: %w", err)
	}

	return nil
}
