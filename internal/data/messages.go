package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultWindow bounds List when the caller does not supply a cap.
const DefaultWindow = 50

// MessageLog is the append-only ordered log of messages, partitioned by
// thread. It also keeps the owning thread's summary in step with the log's
// latest entry.
type MessageLog struct {
	coll    *mongo.Collection
	threads *ThreadStore
}

// NewMessageLog returns a MessageLog over the given collection. The thread
// store receives the summary update that follows every append.
func NewMessageLog(coll *mongo.Collection, threads *ThreadStore) *MessageLog {
	return &MessageLog{coll: coll, threads: threads}
}

// Append validates and appends one message, then updates the owning thread's
// lastMessage and updatedAt. The two writes are sequential, not transactional:
// if the summary update fails after the append succeeded, the persisted
// message is returned together with ErrSummaryStale, since the log is
// authoritative and only the cached summary is behind.
//
// clientToken, when supplied, is stored so live views can replace an
// optimistic pending copy with the acknowledged one.
func (l *MessageLog) Append(ctx context.Context, threadID, senderID, text, clientToken string) (*Message, error) {
	// Validate before any store access; a bad send fails loudly here
	threadID = strings.TrimSpace(threadID)
	senderID = strings.TrimSpace(senderID)
	text = strings.TrimSpace(text)
	if threadID == "" || senderID == "" || text == "" {
		return nil, fmt.Errorf("%w: thread id, sender id and non-blank text are all required", ErrValidation)
	}

	// Build the document matching the domain model in models.go
	msg := &Message{
		ThreadID:    threadID,
		SenderID:    senderID,
		Text:        text,               // stored verbatim after the trim above
		CreatedAt:   time.Now().UTC(),   // server-side clock, the ordering authority
		ReadBy:      []string{senderID}, // the sender has seen their own message
		ClientToken: clientToken,
	}

	// Write 1 of 2: InsertOne appends the message to the log
	result, err := l.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: append to %s: %v", ErrStoreUnavailable, threadID, err)
	}
	// Extract MongoDB's auto-generated _id and populate it in the struct
	msg.ID = result.InsertedID.(bson.ObjectID)

	// Write 2 of 2: refresh the owning thread's denormalized summary
	summary := MessageSummary{Text: msg.Text, SenderID: msg.SenderID, CreatedAt: msg.CreatedAt}
	if err := l.threads.SetLastMessage(ctx, threadID, summary); err != nil {
		// The message is durable at this point; only the cache is behind
		return msg, fmt.Errorf("%w: %v", ErrSummaryStale, err)
	}
	return msg, nil
}

// List returns the most recent window of a thread's messages in ascending
// chronological order. limit <= 0 applies DefaultWindow. Ties on createdAt are
// broken by _id, i.e. store insertion order.
func (l *MessageLog) List(ctx context.Context, threadID string, limit int64) ([]*Message, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, fmt.Errorf("%w: empty thread id", ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultWindow
	}

	// Fetch newest-first so the limit trims old history, then reverse into
	// the ascending order subscribers expect.
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	// Execute the query; Find returns a cursor to iterate results
	cursor, err := l.coll.Find(ctx, bson.M{"threadId": threadID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages for %s: %v", ErrStoreUnavailable, threadID, err)
	}
	// Ensure cursor is closed when done (cleanup)
	defer cursor.Close(ctx)

	// All() reads every document from the cursor into the slice
	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("%w: decode messages for %s: %v", ErrStoreUnavailable, threadID, err)
	}

	// Reverse the slice because the query returned newest first (-1 sort)
	// but subscribers expect chronological order, oldest message first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead adds readerID to the message's readBy set. The set only grows;
// marking the same message twice is a no-op.
func (l *MessageLog) MarkRead(ctx context.Context, threadID string, messageID bson.ObjectID, readerID string) error {
	readerID = strings.TrimSpace(readerID)
	if strings.TrimSpace(threadID) == "" || readerID == "" {
		return fmt.Errorf("%w: thread id and reader id are required", ErrValidation)
	}

	// The threadId in the filter stops a reader crossing into another
	// thread's message by guessing an id
	filter := bson.M{"_id": messageID, "threadId": threadID}
	// $addToSet is idempotent: repeated marks don't duplicate the reader
	update := bson.M{"$addToSet": bson.M{"readBy": readerID}}
	res, err := l.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%w: mark read in %s: %v", ErrStoreUnavailable, threadID, err)
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}
