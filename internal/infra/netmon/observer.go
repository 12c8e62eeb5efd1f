// Package netmon tracks device connectivity behind a single Observer
// interface. The concrete implementation is chosen once at composition time
// and never branched on downstream.
package netmon

import (
	"sync"
	"time"

	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/pubsub"
)

// Observer exposes a synchronous connectivity snapshot and an asynchronous
// change stream.
type Observer interface {
	// Snapshot returns the current network state.
	Snapshot() domain.NetworkState

	// Subscribe returns a channel of state changes and a cancel function.
	Subscribe() (<-chan domain.NetworkState, func())

	// Close stops observation and terminates all subscriptions.
	Close()
}

// ManualObserver is an Observer whose state is set explicitly. Used in tests
// and on platforms where connectivity events are pushed in from outside.
type ManualObserver struct {
	mu      sync.RWMutex
	current domain.NetworkState
	bus     *pubsub.Broadcaster[domain.NetworkState]
}

// NewManualObserver starts in the given state.
func NewManualObserver(initial domain.NetworkState) *ManualObserver {
	if initial.Timestamp.IsZero() {
		initial.Timestamp = time.Now()
	}
	return &ManualObserver{
		current: initial,
		bus:     pubsub.NewBroadcaster[domain.NetworkState](),
	}
}

// Set publishes a new snapshot if anything other than the timestamp changed.
func (o *ManualObserver) Set(state domain.NetworkState) {
	state.Timestamp = time.Now()

	o.mu.Lock()
	prev := o.current
	o.current = state
	o.mu.Unlock()

	if sameState(prev, state) {
		return
	}
	o.bus.Publish(state)
}

func (o *ManualObserver) Snapshot() domain.NetworkState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

func (o *ManualObserver) Subscribe() (<-chan domain.NetworkState, func()) {
	return o.bus.Subscribe()
}

func (o *ManualObserver) Close() {
	o.bus.Close()
}

func sameState(a, b domain.NetworkState) bool {
	return a.Connected == b.Connected &&
		a.Type == b.Type &&
		a.Metered == b.Metered &&
		a.Validated == b.Validated
}
