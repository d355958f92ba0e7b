// Package feed carries store change notifications to live subscribers.
//
// The local write path publishes into the broker directly after every
// successful store write; when change streams are enabled, a Tailer also
// republishes writes made by other processes. Subscribers re-fetch on every
// wakeup, so receiving the same change twice is harmless.
package feed

import (
	"sync"

	"github.com/mentorgrid/conversations/internal/data"
)

// TopicThreads routes thread creations, merges and summary updates.
const TopicThreads = "threads"

// MessagesTopic routes appends, read updates and optimistic sends for one
// thread's log.
func MessagesTopic(threadID string) string {
	return "messages/" + threadID
}

// Event describes one store change.
type Event struct {
	Topic    string
	ThreadID string

	// Pending carries an optimistic, not-yet-acknowledged message, keyed by
	// its client token. Nil for resolved store changes.
	Pending *data.Message

	// Retract names the client token of an optimistic send whose store write
	// failed, so views drop the pending copy.
	Retract string
}

// Subscriber receives events for one topic. A non-nil error tells the broker
// the subscriber is gone; it is pruned and never notified again.
type Subscriber interface {
	Notify(Event) error
}

// Broker is an in-process change feed: a registry of subscribers keyed by
// topic. Registration returns a numeric id used to unsubscribe.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[int64]Subscriber
	nextID int64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[int64]Subscriber)}
}

// Subscribe registers s for the topic and returns the id to unsubscribe with.
func (b *Broker) Subscribe(topic string, s Subscriber) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = make(map[int64]Subscriber)
	}
	b.nextID++
	id := b.nextID
	b.topics[topic][id] = s
	return id
}

// Unsubscribe removes a previously-registered subscriber. Unknown ids are
// ignored, so disposers may run more than once.
func (b *Broker) Unsubscribe(topic string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.topics[topic]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
}

// Publish delivers ev to every subscriber of its topic. Delivery is
// best-effort: subscribers that report an error are pruned so a dead
// subscription never blocks the feed again. Publishing to a topic with no
// subscribers is a no-op.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	ids := make([]int64, 0, len(b.topics[ev.Topic]))
	subs := make([]Subscriber, 0, len(b.topics[ev.Topic]))
	for id, s := range b.topics[ev.Topic] {
		ids = append(ids, id)
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	// Notify outside the lock: subscribers may block briefly and disposers
	// need the write lock.
	for i, s := range subs {
		if err := s.Notify(ev); err != nil {
			b.Unsubscribe(ev.Topic, ids[i])
		}
	}
}
