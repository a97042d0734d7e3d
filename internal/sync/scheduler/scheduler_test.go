// Package scheduler provides unit tests for the retry scheduler using a
// mock clock, so backoff and periodic behavior run without real waiting.
package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/stablebook/stablesync/internal/errors"
	syncpkg "github.com/stablebook/stablesync/internal/sync"
)

type fakeSyncer struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (f *fakeSyncer) PerformSync(_ context.Context) (*syncpkg.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &syncpkg.Result{}, nil
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNetwork struct {
	mu     sync.Mutex
	online bool
}

func (f *fakeNetwork) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeNetwork) set(online bool) {
	f.mu.Lock()
	f.online = online
	f.mu.Unlock()
}

func testConfig() Config {
	return Config{
		Interval:       15 * time.Minute,
		Flex:           0, // deterministic ticks under the mock clock
		BackoffBase:    1 * time.Minute,
		MaxAttempts:    3,
		OfflineRecheck: 30 * time.Second,
	}
}

// waitFor polls a condition with a real-time deadline; the mock clock
// only advances when the test tells it to.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", desc)
}

// settle gives the loop goroutine time to block on the mock clock again
// before the test advances it.
func settle() {
	time.Sleep(20 * time.Millisecond)
}

func startScheduler(t *testing.T, syncer Syncer, network NetworkMonitor, mock *clock.Mock, cfg Config) *Scheduler {
	t.Helper()
	s := NewScheduler(syncer, network, mock, cfg)
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s
}

// TestTriggerSyncRunsCycle verifies the immediate trigger dispatches a
// cycle and the scheduler returns to idle.
func TestTriggerSyncRunsCycle(t *testing.T) {
	syncer := &fakeSyncer{}
	s := startScheduler(t, syncer, &fakeNetwork{online: true}, clock.NewMock(), testConfig())

	if !s.TriggerSync() {
		t.Fatal("Expected trigger to be accepted")
	}
	waitFor(t, "cycle to run", func() bool { return syncer.callCount() == 1 })
	waitFor(t, "idle state", func() bool { return s.State() == StateIdle })

	last, result := s.LastSync()
	if last.IsZero() || result == nil {
		t.Error("Expected last sync time and result to be recorded")
	}
}

// TestPeriodicTick verifies the interval timer dispatches cycles.
func TestPeriodicTick(t *testing.T) {
	syncer := &fakeSyncer{}
	mock := clock.NewMock()
	startScheduler(t, syncer, &fakeNetwork{online: true}, mock, testConfig())
	settle()

	mock.Add(15 * time.Minute)
	waitFor(t, "first periodic cycle", func() bool { return syncer.callCount() == 1 })

	settle()
	mock.Add(15 * time.Minute)
	waitFor(t, "second periodic cycle", func() bool { return syncer.callCount() == 2 })
}

// TestTriggerCoalesces verifies a second trigger is a no-op while one is
// already queued.
func TestTriggerCoalesces(t *testing.T) {
	s := NewScheduler(&fakeSyncer{}, &fakeNetwork{online: true}, clock.NewMock(), testConfig())

	if !s.TriggerSync() {
		t.Fatal("Expected first trigger to be accepted")
	}
	if s.TriggerSync() {
		t.Error("Expected second trigger to coalesce")
	}
}

// TestBackoffAndCeiling verifies failed attempts back off exponentially
// and the invocation is abandoned as Failed at the attempt ceiling.
func TestBackoffAndCeiling(t *testing.T) {
	syncer := &fakeSyncer{errs: []error{
		errors.New(errors.ErrSyncFailed, "boom"),
		errors.New(errors.ErrSyncFailed, "boom"),
		errors.New(errors.ErrSyncFailed, "boom"),
	}}
	mock := clock.NewMock()
	s := startScheduler(t, syncer, &fakeNetwork{online: true}, mock, testConfig())

	s.TriggerSync()
	waitFor(t, "first attempt", func() bool { return syncer.callCount() == 1 })

	// First backoff is the base delay.
	settle()
	mock.Add(1 * time.Minute)
	waitFor(t, "second attempt", func() bool { return syncer.callCount() == 2 })

	// Second backoff doubles. Half the delay must not release it.
	settle()
	mock.Add(1 * time.Minute)
	settle()
	if syncer.callCount() != 2 {
		t.Fatalf("Expected backoff to hold at doubled delay, got %d calls", syncer.callCount())
	}
	mock.Add(1 * time.Minute)
	waitFor(t, "third attempt", func() bool { return syncer.callCount() == 3 })

	waitFor(t, "failed state", func() bool { return s.State() == StateFailed })

	// A fresh trigger starts a new invocation with a reset counter.
	s.TriggerSync()
	waitFor(t, "fresh invocation", func() bool { return syncer.callCount() == 4 })
	waitFor(t, "idle after success", func() bool { return s.State() == StateIdle })
}

// TestOfflineHoldsInvocationPending verifies the network precondition
// keeps the invocation pending instead of consuming it.
func TestOfflineHoldsInvocationPending(t *testing.T) {
	syncer := &fakeSyncer{}
	network := &fakeNetwork{online: false}
	mock := clock.NewMock()
	s := startScheduler(t, syncer, network, mock, testConfig())

	s.TriggerSync()
	waitFor(t, "pending state", func() bool { return s.State() == StatePending })

	settle()
	mock.Add(30 * time.Second)
	settle()
	mock.Add(30 * time.Second)
	settle()
	if syncer.callCount() != 0 {
		t.Fatalf("Expected no cycles while offline, got %d", syncer.callCount())
	}

	network.set(true)
	mock.Add(30 * time.Second)
	waitFor(t, "cycle after reconnect", func() bool { return syncer.callCount() == 1 })
	waitFor(t, "idle state", func() bool { return s.State() == StateIdle })
}

// TestAttemptCounterResetsOnSuccess verifies a clean success wipes the
// failure history for later invocations.
func TestAttemptCounterResetsOnSuccess(t *testing.T) {
	syncer := &fakeSyncer{errs: []error{
		errors.New(errors.ErrNetworkUnavailable, "flap"),
		nil, // recovery
		errors.New(errors.ErrSyncFailed, "boom"),
	}}
	mock := clock.NewMock()
	s := startScheduler(t, syncer, &fakeNetwork{online: true}, mock, testConfig())

	s.TriggerSync()
	waitFor(t, "first attempt", func() bool { return syncer.callCount() == 1 })
	settle()
	mock.Add(1 * time.Minute)
	waitFor(t, "recovery attempt", func() bool { return syncer.callCount() == 2 })
	waitFor(t, "idle state", func() bool { return s.State() == StateIdle })

	// The next invocation starts at the base backoff again.
	s.TriggerSync()
	waitFor(t, "third attempt", func() bool { return syncer.callCount() == 3 })
	settle()
	mock.Add(1 * time.Minute)
	waitFor(t, "fourth attempt", func() bool { return syncer.callCount() == 4 })
	waitFor(t, "idle state", func() bool { return s.State() == StateIdle })
}

// TestSyncInProgressEndsInvocation verifies a concurrent-cycle rejection
// is not treated as a failure to retry.
func TestSyncInProgressEndsInvocation(t *testing.T) {
	syncer := &fakeSyncer{errs: []error{
		errors.New(errors.ErrSyncInProgress, "busy"),
	}}
	mock := clock.NewMock()
	s := startScheduler(t, syncer, &fakeNetwork{online: true}, mock, testConfig())

	s.TriggerSync()
	waitFor(t, "attempt", func() bool { return syncer.callCount() == 1 })
	waitFor(t, "idle state", func() bool { return s.State() == StateIdle })

	settle()
	mock.Add(5 * time.Minute)
	settle()
	if syncer.callCount() != 1 {
		t.Errorf("Expected no retry after in-progress rejection, got %d calls", syncer.callCount())
	}
}

// TestObserveState verifies the state feed reports the transitions of a
// successful invocation in order.
func TestObserveState(t *testing.T) {
	syncer := &fakeSyncer{}
	s := startScheduler(t, syncer, &fakeNetwork{online: true}, clock.NewMock(), testConfig())

	states, cancel := s.ObserveState()
	defer cancel()

	s.TriggerSync()

	want := []State{StatePending, StateSyncing, StateIdle}
	for _, expected := range want {
		select {
		case got := <-states:
			if got != expected {
				t.Fatalf("Expected state %s, got %s", expected, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for state %s", expected)
		}
	}
}

// TestStartIdempotentStopGraceful verifies repeated Start is a no-op and
// Stop waits the loop out.
func TestStartIdempotentStopGraceful(t *testing.T) {
	syncer := &fakeSyncer{}
	s := NewScheduler(syncer, &fakeNetwork{online: true}, clock.NewMock(), testConfig())

	s.Start(context.Background())
	s.Start(context.Background())
	if !s.IsRunning() {
		t.Fatal("Expected scheduler to be running")
	}

	s.Stop()
	if s.IsRunning() {
		t.Fatal("Expected scheduler to be stopped")
	}

	if s.TriggerSync() {
		// The trigger is accepted but nothing consumes it; state stays idle.
		settle()
		if s.State() != StateIdle {
			t.Errorf("Expected idle after stop, got %s", s.State())
		}
	}
}

// TestRestartAfterStop verifies a stopped scheduler can be started again
// and still runs cycles, and that a second Stop does not panic.
func TestRestartAfterStop(t *testing.T) {
	syncer := &fakeSyncer{}
	s := NewScheduler(syncer, &fakeNetwork{online: true}, clock.NewMock(), testConfig())

	s.Start(context.Background())
	s.Stop()

	s.Start(context.Background())
	if !s.IsRunning() {
		t.Fatal("Expected scheduler to be running after restart")
	}

	if !s.TriggerSync() {
		t.Fatal("Expected trigger to be accepted")
	}
	waitFor(t, "cycle after restart", func() bool { return syncer.callCount() == 1 })

	s.Stop()
	if s.IsRunning() {
		t.Fatal("Expected scheduler to be stopped")
	}
}

// TestSyncNow verifies the synchronous path records the result.
func TestSyncNow(t *testing.T) {
	syncer := &fakeSyncer{}
	s := NewScheduler(syncer, &fakeNetwork{online: true}, clock.NewMock(), testConfig())

	result, err := s.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}
	if result == nil {
		t.Fatal("Expected a result")
	}
	if last, _ := s.LastSync(); last.IsZero() {
		t.Error("Expected last sync time to be recorded")
	}
}
