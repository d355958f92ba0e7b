// Package projector derives live, sorted views from the store change feed.
//
// Each subscription runs one goroutine that re-fetches its view from the
// store on every feed wakeup and hands the result to the caller's callback.
// Callbacks for one subscription are therefore always delivered in order and
// never concurrently.
package projector

import (
	"errors"
	"sync"

	"github.com/mentorgrid/conversations/internal/feed"
)

var errDisposed = errors.New("subscription disposed")

// subscription is the feed.Subscriber half of a live view. Resolved changes
// coalesce (the consumer re-fetches anyway, so dropped wakeups never drop
// data); optimistic and retract events carry payload and must all arrive, so
// they queue and, if the queue is full, block the publisher briefly rather
// than get lost.
type subscription struct {
	ch    chan feed.Event
	done  chan struct{}
	match func(feed.Event) bool
	once  sync.Once
}

func newSubscription(match func(feed.Event) bool) *subscription {
	return &subscription{
		ch:    make(chan feed.Event, 16),
		done:  make(chan struct{}),
		match: match,
	}
}

func (s *subscription) Notify(ev feed.Event) error {
	select {
	case <-s.done:
		return errDisposed
	default:
	}
	if s.match != nil && !s.match(ev) {
		return nil
	}

	if ev.Pending != nil || ev.Retract != "" {
		select {
		case s.ch <- ev:
		case <-s.done:
			return errDisposed
		}
		return nil
	}

	select {
	case s.ch <- ev:
	default: // a wakeup is already queued; the re-fetch covers this change too
	}
	return nil
}

// dispose detaches the subscription. Safe to call more than once and from any
// goroutine.
func (s *subscription) dispose() {
	s.once.Do(func() { close(s.done) })
}
