package util

import (
	"sync"
)

// AtomicEvent holds a single, latest event and provides non-blocking updates.
// Only the most recent event is retained.
type AtomicEvent[T any] struct {
	mu     sync.Mutex    // Protects access to 'value' and 'count'
	value  T             // The latest event
	count  uint64        // Number of events sent so far
	notify chan struct{} // Buffered channel of size 1 for notification
}

// NewAtomicEvent creates a new AtomicEvent instance.
func NewAtomicEvent[T any]() *AtomicEvent[T] {
	return &AtomicEvent[T]{
		notify: make(chan struct{}, 1),
	}
}

// Send updates with the latest event. It is non-blocking.
func (ae *AtomicEvent[T]) Send(event T) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	ae.value = event
	ae.count++

	select {
	case ae.notify <- struct{}{}:
	default:
		// notification is already pending
	}
}

// Channel returns the notification channel for use in select statements.
func (ae *AtomicEvent[T]) Channel() <-chan struct{} {
	return ae.notify
}

// Value returns the current latest event and false if nothing has been
// sent yet.
func (ae *AtomicEvent[T]) Value() (T, bool) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.value, ae.count > 0
}

// Count returns how many events have been sent.
func (ae *AtomicEvent[T]) Count() uint64 {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.count
}

// HasPending checks if a notification is waiting to be consumed.
// This is a non-destructive check.
func (ae *AtomicEvent[T]) HasPending() bool {
	return len(ae.notify) > 0
}
