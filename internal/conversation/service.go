// Package conversation is the public facade of the threading subsystem: it
// composes thread identity, the thread store, the message log and the live
// projectors behind one surface.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mentorgrid/conversations/internal/data"
	"github.com/mentorgrid/conversations/internal/feed"
	"github.com/mentorgrid/conversations/internal/projector"
)

// ThreadStore is the slice of the thread store the facade needs.
type ThreadStore interface {
	EnsureThread(ctx context.Context, a, b data.Participant) (*data.Thread, error)
}

// MessageLog is the slice of the message log the facade needs.
type MessageLog interface {
	Append(ctx context.Context, threadID, senderID, text, clientToken string) (*data.Message, error)
	MarkRead(ctx context.Context, threadID string, messageID bson.ObjectID, readerID string) error
}

// Service exposes the conversation operations the rest of the application
// consumes. All dependencies are passed in explicitly so instances are
// isolated and test doubles slot in cleanly.
type Service struct {
	threads     ThreadStore
	log         MessageLog
	threadViews *projector.ThreadListProjector
	msgViews    *projector.MessageListProjector
	broker      *feed.Broker
}

// New wires a Service from its collaborators.
func New(threads ThreadStore, log MessageLog, threadViews *projector.ThreadListProjector, msgViews *projector.MessageListProjector, broker *feed.Broker) *Service {
	return &Service{
		threads:     threads,
		log:         log,
		threadViews: threadViews,
		msgViews:    msgViews,
		broker:      broker,
	}
}

// EnsureThread guarantees the canonical thread for the participant pair
// exists, creating it on first contact and harmlessly merging on every later
// one, then notifies live thread lists. Safe to call from both participants
// concurrently and to retry after ErrStoreUnavailable.
func (s *Service) EnsureThread(ctx context.Context, a, b data.Participant) (*data.Thread, error) {
	th, err := s.threads.EnsureThread(ctx, a, b)
	if err != nil {
		return nil, err
	}
	s.broker.Publish(feed.Event{Topic: feed.TopicThreads, ThreadID: th.ID})
	return th, nil
}

// SendMessage appends one message to the thread's log and updates its
// summary. Invalid input fails with ErrValidation before anything is written.
// A durable append whose summary update failed returns the message together
// with ErrSummaryStale.
//
// Open views of the thread see the message optimistically, tagged pending,
// before the store acknowledges it; a failed write retracts the optimistic
// copy.
func (s *Service) SendMessage(ctx context.Context, threadID, senderID, text string) (*data.Message, error) {
	threadID = strings.TrimSpace(threadID)
	senderID = strings.TrimSpace(senderID)
	text = strings.TrimSpace(text)
	if threadID == "" || senderID == "" || text == "" {
		return nil, fmt.Errorf("%w: thread id, sender id and non-blank text are all required", ErrValidation)
	}

	token := uuid.NewString()
	topic := feed.MessagesTopic(threadID)
	s.broker.Publish(feed.Event{
		Topic:    topic,
		ThreadID: threadID,
		Pending: &data.Message{
			ThreadID:    threadID,
			SenderID:    senderID,
			Text:        text,
			CreatedAt:   time.Now().UTC(),
			ReadBy:      []string{senderID},
			ClientToken: token,
		},
	})

	msg, err := s.log.Append(ctx, threadID, senderID, text, token)
	if err != nil && !errors.Is(err, ErrSummaryStale) {
		s.broker.Publish(feed.Event{Topic: topic, ThreadID: threadID, Retract: token})
		return nil, err
	}

	s.broker.Publish(feed.Event{Topic: topic, ThreadID: threadID})
	s.broker.Publish(feed.Event{Topic: feed.TopicThreads, ThreadID: threadID})
	return msg, err
}

// MarkRead records that readerID has seen the message. The readBy set only
// grows; repeated calls are no-ops.
func (s *Service) MarkRead(ctx context.Context, threadID string, messageID bson.ObjectID, readerID string) error {
	if err := s.log.MarkRead(ctx, threadID, messageID, readerID); err != nil {
		return err
	}
	s.broker.Publish(feed.Event{Topic: feed.MessagesTopic(threadID), ThreadID: threadID})
	return nil
}

// SubscribeThreads streams the viewer's thread list, most recently updated
// first, until the returned disposer is called.
func (s *Service) SubscribeThreads(userID string, onChange func([]projector.ThreadView)) func() {
	return s.threadViews.SubscribeThreads(userID, onChange)
}

// SubscribeMessages streams one thread's message window in ascending order
// until the returned disposer is called. max <= 0 applies the default window.
func (s *Service) SubscribeMessages(threadID string, onChange func([]projector.MessageView), max int64) func() {
	return s.msgViews.SubscribeMessages(threadID, onChange, max)
}
