package projector

import (
	"context"
	"sort"
	"strings"

	"github.com/mentorgrid/conversations/internal/data"
	"github.com/mentorgrid/conversations/internal/feed"
	"github.com/mentorgrid/conversations/internal/identity"
)

// ThreadLister is the slice of the thread store the projector reads from.
type ThreadLister interface {
	ListThreadsFor(ctx context.Context, userID string) ([]*data.Thread, error)
}

// ThreadView is one entry in a delivered thread list. OrderKey is the tagged
// updatedAt value the list is sorted by; a pending key means the thread's
// latest write has not been acknowledged yet.
type ThreadView struct {
	Thread   *data.Thread   `json:"thread"`
	OrderKey data.Timestamp `json:"orderKey"`
}

// ThreadListProjector maintains, per subscriber, a live list of the threads
// one user participates in, most recently updated first.
type ThreadListProjector struct {
	store  ThreadLister
	broker *feed.Broker
}

// NewThreadListProjector returns a projector reading from store and waking on
// broker events.
func NewThreadListProjector(store ThreadLister, broker *feed.Broker) *ThreadListProjector {
	return &ThreadListProjector{store: store, broker: broker}
}

// SubscribeThreads delivers the viewer's current thread list immediately and
// again after every change to a thread the viewer participates in, until the
// returned disposer is called. An empty user id registers nothing and returns
// a safe no-op disposer.
//
// A fetch failure leaves the previously delivered list in place; the next
// successful wakeup repairs the view.
func (p *ThreadListProjector) SubscribeThreads(userID string, onChange func([]ThreadView)) func() {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return func() {}
	}

	sub := newSubscription(func(ev feed.Event) bool {
		return ev.ThreadID == "" || identity.Contains(ev.ThreadID, userID)
	})
	id := p.broker.Subscribe(feed.TopicThreads, sub)

	go func() {
		defer p.broker.Unsubscribe(feed.TopicThreads, id)
		for {
			if view, err := p.snapshot(userID); err == nil {
				onChange(view)
			}
			select {
			case <-sub.done:
				return
			case <-sub.ch:
			}
		}
	}()

	return sub.dispose
}

func (p *ThreadListProjector) snapshot(userID string) ([]ThreadView, error) {
	threads, err := p.store.ListThreadsFor(context.Background(), userID)
	if err != nil {
		return nil, err
	}

	view := make([]ThreadView, 0, len(threads))
	for _, th := range threads {
		view = append(view, ThreadView{
			Thread:   th,
			OrderKey: data.Timestamp{Time: th.UpdatedAt, Pending: th.UpdatedAt.IsZero()},
		})
	}

	// Most recently updated first; unresolved keys sort last instead of
	// crashing or floating to the top.
	sort.SliceStable(view, func(i, j int) bool {
		a, b := view[i].OrderKey, view[j].OrderKey
		if a.Pending != b.Pending {
			return !a.Pending
		}
		return b.Time.Before(a.Time)
	})
	return view, nil
}
