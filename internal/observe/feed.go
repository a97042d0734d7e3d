// Package observe provides a small publish/subscribe primitive used for the
// UI-facing pending-count and sync-status streams.
package observe

import "sync"

// Feed fans a stream of values out to any number of subscribers.
// Publishing never blocks: when a subscriber's buffer is full the new
// value is dropped for that subscriber, which keeps the older buffered
// values. Subscribers are freshly primed with nothing; callers that
// need the current value read it synchronously first.
type Feed[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan T
}

// NewFeed creates an empty Feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function. The channel is buffered so a slow reader does not
// stall publishers.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++

	ch := make(chan T, 8)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers v to every subscriber, dropping it for subscribers
// whose buffers are full.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
