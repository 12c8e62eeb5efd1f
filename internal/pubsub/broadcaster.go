// Package pubsub provides a small channel-based broadcaster used for the
// observable values exposed by the connection layer.
package pubsub

import "sync"

// Broadcaster fans out values to any number of subscribers. Dispatch is
// non-blocking: a subscriber that is not draining its channel misses updates
// rather than stalling the publisher.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan T
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]chan T)}
}

// Subscribe returns a receive channel and a cancel function. Cancelling
// closes the channel and removes the subscription.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, 8)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers v to all current subscribers without blocking.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Close terminates all subscriptions. Further publishes are dropped.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
