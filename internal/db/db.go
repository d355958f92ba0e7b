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

// Client wraps mongo.Client and exposes the conversation collections. It is
// passed explicitly into every component that needs it; there is no ambient
// module-level handle.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	// db is the database the conversation collections live in
	// Collections ("threads", "messages") are accessed via this reference
	db *mongo.Database
}

// New connects to MongoDB, verifies the connection and returns a Client bound
// to the named database.
func New(ctx context.Context, mongoURI, database string) (*Client, error) {
	// SetConnectTimeout: fail fast if MongoDB is unreachable
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	// Connect creates the client; no server round trip happens yet
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the primary to verify the connection actually works
	// If the ping doesn't complete in 5 seconds, fail
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	// The database is lazy-loaded: not created until the first write
	return &Client{client: client, db: client.Database(database)}, nil
}

// ThreadsCollection returns the threads collection.
func (c *Client) ThreadsCollection() *mongo.Collection {
	// Created by MongoDB on first write if it doesn't exist
	return c.db.Collection("threads")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	// Created by MongoDB on first write if it doesn't exist
	return c.db.Collection("messages")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	// ctx can carry a timeout to force shutdown after N seconds
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the thread and message queries rely on.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// ===== THREADS COLLECTION INDEXES =====
	threadIndexes := []mongo.IndexModel{
		{
			// Multikey index on the participants array
			// Used by: ListThreadsFor() participants-contains filter
			Keys: map[string]int{"participants": 1},
		},
		{
			// Simple index: just updatedAt
			// Used by: ListThreadsFor() most-recently-active sort (-1 = descending)
			Keys: map[string]int{"updatedAt": -1},
		},
	}

	// Execute index creation on threads collection (creates both indexes)
	if _, err := c.ThreadsCollection().Indexes().CreateMany(ctx, threadIndexes); err != nil {
		return fmt.Errorf("failed to create thread indexes: %w", err)
	}

	// ===== MESSAGES COLLECTION INDEX =====
	messageIndexes := []mongo.IndexModel{
		{
			// Composite index: (threadId, createdAt, _id)
			// Used by: List() to walk one thread's log in order
			// _id participates so equal timestamps keep a stable order
			Keys: bson.D{{Key: "threadId", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}},
		},
	}

	// Execute index creation on messages collection
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	// All indexes created successfully
	return nil
}
