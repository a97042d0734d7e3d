// Package observe provides unit tests for the publish/subscribe feed.
package observe

import (
	"testing"
	"time"
)

// TestFeedDeliversToAllSubscribers tests basic fan-out.
func TestFeedDeliversToAllSubscribers(t *testing.T) {
	f := NewFeed[int]()

	ch1, cancel1 := f.Subscribe()
	ch2, cancel2 := f.Subscribe()
	defer cancel1()
	defer cancel2()

	f.Publish(42)

	for i, ch := range []<-chan int{ch1, ch2} {
		select {
		case v := <-ch:
			if v != 42 {
				t.Errorf("Subscriber %d: expected 42, got %d", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("Subscriber %d: timed out waiting for value", i)
		}
	}
}

// TestFeedCancelClosesChannel tests that cancel unregisters and closes.
func TestFeedCancelClosesChannel(t *testing.T) {
	f := NewFeed[string]()

	ch, cancel := f.Subscribe()
	if f.Len() != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", f.Len())
	}

	cancel()
	if f.Len() != 0 {
		t.Errorf("Expected 0 subscribers after cancel, got %d", f.Len())
	}

	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed after cancel")
	}

	// Second cancel is a no-op.
	cancel()
}

// TestFeedDropsWhenBufferFull tests that publishing never blocks.
func TestFeedDropsWhenBufferFull(t *testing.T) {
	f := NewFeed[int]()

	ch, cancel := f.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			f.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// The subscriber still received the earliest values up to its buffer.
	if v := <-ch; v != 0 {
		t.Errorf("Expected first buffered value 0, got %d", v)
	}
}
