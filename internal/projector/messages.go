package projector

import (
	"context"
	"sort"
	"strings"

	"github.com/mentorgrid/conversations/internal/data"
	"github.com/mentorgrid/conversations/internal/feed"
)

// MessageLister is the slice of the message log the projector reads from.
type MessageLister interface {
	List(ctx context.Context, threadID string, limit int64) ([]*data.Message, error)
}

// MessageView is one entry in a delivered message list. CreatedAt carries the
// pending/resolved tag: a pending entry is an optimistic local copy the store
// has not acknowledged yet.
type MessageView struct {
	Message   *data.Message  `json:"message"`
	CreatedAt data.Timestamp `json:"createdAt"`
}

// MessageListProjector maintains, per subscriber, a live ascending-ordered
// window over one thread's message log.
type MessageListProjector struct {
	log    MessageLister
	broker *feed.Broker
}

// NewMessageListProjector returns a projector reading from log and waking on
// broker events.
func NewMessageListProjector(log MessageLister, broker *feed.Broker) *MessageListProjector {
	return &MessageListProjector{log: log, broker: broker}
}

// SubscribeMessages delivers the thread's current message window immediately
// and again after every change, ascending by createdAt with store insertion
// order breaking ties, until the returned disposer is called. max <= 0
// applies the log's default window. An empty thread id registers nothing and
// returns a safe no-op disposer.
//
// A just-sent message appears in the view as a pending entry as soon as its
// optimistic event arrives; the acknowledged copy replaces it (matched by
// client token) on the next re-fetch instead of the message vanishing and
// reappearing. A fetch failure leaves the previously delivered window intact.
func (p *MessageListProjector) SubscribeMessages(threadID string, onChange func([]MessageView), max int64) func() {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return func() {}
	}
	if max <= 0 {
		max = data.DefaultWindow
	}

	topic := feed.MessagesTopic(threadID)
	sub := newSubscription(nil)
	id := p.broker.Subscribe(topic, sub)

	go func() {
		defer p.broker.Unsubscribe(topic, id)

		// Optimistic entries by client token, carried until the store
		// acknowledges them or their send is retracted.
		pending := make(map[string]*data.Message)

		deliver := func() {
			msgs, err := p.log.List(context.Background(), threadID, max)
			if err != nil {
				return
			}
			for _, m := range msgs {
				if m.ClientToken != "" {
					delete(pending, m.ClientToken)
				}
			}

			view := make([]MessageView, 0, len(msgs)+len(pending))
			for _, m := range msgs {
				view = append(view, MessageView{Message: m, CreatedAt: data.Timestamp{Time: m.CreatedAt}})
			}
			for _, m := range pending {
				view = append(view, MessageView{Message: m, CreatedAt: data.Timestamp{Time: m.CreatedAt, Pending: true}})
			}
			sort.SliceStable(view, func(i, j int) bool {
				return view[i].CreatedAt.Before(view[j].CreatedAt)
			})
			onChange(view)
		}

		deliver()
		for {
			select {
			case <-sub.done:
				return
			case ev := <-sub.ch:
				if ev.Pending != nil && ev.Pending.ClientToken != "" {
					pending[ev.Pending.ClientToken] = ev.Pending
				}
				if ev.Retract != "" {
					delete(pending, ev.Retract)
				}
				deliver()
			}
		}
	}()

	return sub.dispose
}
