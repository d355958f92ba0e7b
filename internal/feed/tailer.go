package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mentorgrid/conversations/internal/data"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Tailer republishes remote writes from MongoDB change streams into the
// broker, so projectors in this process also observe appends and merges made
// by other API processes. Change streams require a replica-set deployment;
// single-process deployments skip the tailer and rely on the local write path
// feeding the broker.
type Tailer struct {
	threads  *mongo.Collection
	messages *mongo.Collection
	broker   *Broker
}

// NewTailer returns a Tailer over the two conversation collections.
func NewTailer(threads, messages *mongo.Collection, broker *Broker) *Tailer {
	return &Tailer{threads: threads, messages: messages, broker: broker}
}

// Run tails both collections until ctx is cancelled, publishing one event per
// observed change. It returns the first stream error, or nil on cancellation.
func (t *Tailer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = t.tailThreads(ctx)
	}()
	go func() {
		defer wg.Done()
		errs[1] = t.tailMessages(ctx)
	}()
	wg.Wait()

	if err := errors.Join(errs...); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (t *Tailer) tailThreads(ctx context.Context) error {
	stream, err := t.threads.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return fmt.Errorf("watch threads: %w", err)
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var change struct {
			DocumentKey struct {
				ID string `bson:"_id"`
			} `bson:"documentKey"`
		}
		if err := stream.Decode(&change); err != nil || change.DocumentKey.ID == "" {
			continue
		}
		t.broker.Publish(Event{Topic: TopicThreads, ThreadID: change.DocumentKey.ID})
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("threads change stream: %w", err)
	}
	return nil
}

func (t *Tailer) tailMessages(ctx context.Context) error {
	// Message events are routed per-thread, and the thread id lives in the
	// document body, so request the full document for update events too.
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := t.messages.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return fmt.Errorf("watch messages: %w", err)
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var change struct {
			FullDocument data.Message `bson:"fullDocument"`
		}
		if err := stream.Decode(&change); err != nil || change.FullDocument.ThreadID == "" {
			continue
		}
		threadID := change.FullDocument.ThreadID
		t.broker.Publish(Event{Topic: MessagesTopic(threadID), ThreadID: threadID})
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("messages change stream: %w", err)
	}
	return nil
}
