// Package notify is the in-process change fan-out: publishers announce
// that an item changed, every live subscriber sees the announcement in
// publish order. Events carry only the item id; subscribers re-read the
// store for the actual state.
package notify

import (
	"sync"
	"sync/atomic"
)

// DefaultQueueSize caps a subscriber's pending events when no explicit
// size is given.
const DefaultQueueSize = 64

// Notifier broadcasts item ids to subscribers. Publish holds a single
// lock, so all subscribers observe one total event order. Each subscriber
// has its own bounded queue: a subscriber that falls behind is dropped
// (its channel closed) rather than blocking the publisher or its peers.
type Notifier struct {
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	queueSize int
}

// Subscription is one subscriber's handle. Events arrive on Events in
// publish order, starting strictly after Subscribe returned. The channel
// is closed on Cancel or when the notifier drops the subscriber for
// falling behind; Dropped distinguishes the two.
type Subscription struct {
	n       *Notifier
	events  chan int
	dropped atomic.Bool
}

// New creates a notifier whose subscribers queue at most queueSize
// pending events. queueSize <= 0 selects DefaultQueueSize.
func New(queueSize int) *Notifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Notifier{
		subs:      make(map[*Subscription]struct{}),
		queueSize: queueSize,
	}
}

// Subscribe registers a new subscriber. The subscriber sees every event
// published after this call returns, none before.
func (n *Notifier) Subscribe() *Subscription {
	sub := &Subscription{
		n:      n,
		events: make(chan int, n.queueSize),
	}
	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

// Publish delivers item to every live subscriber. A subscriber whose
// queue is full is dropped: removed from the registry and its channel
// closed, so its session terminates and the client reconnects for a
// full resync.
func (n *Notifier) Publish(item int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		select {
		case sub.events <- item:
		default:
			sub.dropped.Store(true)
			delete(n.subs, sub)
			close(sub.events)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Events is the subscriber's ordered event stream. It is closed exactly
// once, by Cancel or by an overflow drop.
func (s *Subscription) Events() <-chan int {
	return s.events
}

// Dropped reports whether the notifier evicted this subscriber for
// falling behind.
func (s *Subscription) Dropped() bool {
	return s.dropped.Load()
}

// Cancel detaches the subscription and closes its channel. Idempotent;
// no event is delivered after Cancel returns.
func (s *Subscription) Cancel() {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if _, ok := s.n.subs[s]; ok {
		delete(s.n.subs, s)
		close(s.events)
	}
}
