// Package scheduler dispatches sync cycles in the background: a periodic
// trigger with a jittered interval, an immediate trigger for low-latency
// convergence after a local mutation, and exponential backoff with a
// bounded attempt count when cycles fail.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/stablebook/stablesync/internal/errors"
	"github.com/stablebook/stablesync/internal/logging"
	"github.com/stablebook/stablesync/internal/observe"
	syncpkg "github.com/stablebook/stablesync/internal/sync"
)

// State is the observable scheduler state.
type State string

const (
	// StateIdle means no invocation is active or queued.
	StateIdle State = "idle"

	// StatePending means an invocation is waiting, either for the network
	// precondition or for a backoff delay to elapse.
	StatePending State = "pending"

	// StateSyncing means a cycle is executing.
	StateSyncing State = "syncing"

	// StateFailed means the last invocation exhausted its attempts and
	// was abandoned until the next trigger.
	StateFailed State = "failed"
)

// Syncer executes one push/pull cycle.
type Syncer interface {
	PerformSync(ctx context.Context) (*syncpkg.Result, error)
}

// NetworkMonitor reports whether the device currently has connectivity.
type NetworkMonitor interface {
	Online() bool
}

// Config holds scheduler timing parameters.
type Config struct {
	Interval       time.Duration // periodic trigger interval
	Flex           time.Duration // jitter window added to the interval
	BackoffBase    time.Duration // first retry delay, doubled per attempt
	MaxAttempts    int           // attempts per invocation before giving up
	OfflineRecheck time.Duration // how often to re-test the network precondition
}

// DefaultConfig returns the stock scheduler timing.
func DefaultConfig() Config {
	return Config{
		Interval:       15 * time.Minute,
		Flex:           5 * time.Minute,
		BackoffBase:    1 * time.Minute,
		MaxAttempts:    5,
		OfflineRecheck: 30 * time.Second,
	}
}

// Scheduler owns the background sync loop. One invocation runs at a
// time; the immediate trigger coalesces while one is queued, so a burst
// of local mutations produces at most one extra cycle.
type Scheduler struct {
	syncer  Syncer
	network NetworkMonitor
	clock   clock.Clock
	cfg     Config
	rng     *rand.Rand

	trigger chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu           sync.RWMutex
	running      bool
	state        State
	lastSyncTime time.Time
	lastResult   *syncpkg.Result

	stateFeed *observe.Feed[State]
}

// NewScheduler creates a Scheduler. A nil clock uses the wall clock;
// tests inject a mock.
func NewScheduler(syncer Syncer, network NetworkMonitor, clk clock.Clock, cfg Config) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		syncer:    syncer,
		network:   network,
		clock:     clk,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		trigger:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		state:     StateIdle,
		stateFeed: observe.NewFeed[State](),
	}
}

// Start launches the background loop. Starting an already-running
// scheduler is a no-op, so re-registration keeps the existing schedule.
// A stopped scheduler may be started again.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	// Stop closed the previous channel; a fresh one makes the
	// scheduler restartable.
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("Sync scheduler started", map[string]interface{}{
		"interval_minutes": s.cfg.Interval.Minutes(),
	})
}

// Stop stops the background loop and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// TriggerSync requests an immediate cycle. Returns false when a trigger
// is already queued; the request coalesces with it.
func (s *Scheduler) TriggerSync() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// SyncNow runs one cycle synchronously, bypassing the background loop.
// The orchestrator's own single-flight guard protects against overlap
// with a loop-dispatched cycle.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.Result, error) {
	result, err := s.syncer.PerformSync(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lastSyncTime = s.clock.Now()
	s.lastResult = result
	s.mu.Unlock()
	return result, nil
}

// State returns the current observable state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ObserveState subscribes to state transitions. The returned cancel
// function releases the subscription.
func (s *Scheduler) ObserveState() (<-chan State, func()) {
	return s.stateFeed.Subscribe()
}

// LastSync returns when the last clean cycle finished and its result;
// the zero time means no cycle has succeeded yet.
func (s *Scheduler) LastSync() (time.Time, *syncpkg.Result) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncTime, s.lastResult
}

// IsRunning reports whether the background loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		s.stateFeed.Publish(state)
	}
}

// nextInterval is the periodic interval plus uniform jitter within the
// flex window, so devices do not all sync on the same beat.
func (s *Scheduler) nextInterval() time.Duration {
	if s.cfg.Flex <= 0 {
		return s.cfg.Interval
	}
	return s.cfg.Interval + time.Duration(s.rng.Int63n(int64(s.cfg.Flex)))
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := s.clock.Timer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-timer.C:
			s.runInvocation(ctx)
			timer.Reset(s.nextInterval())
		case <-s.trigger:
			s.runInvocation(ctx)
			timer.Reset(s.nextInterval())
		}
	}
}

// runInvocation drives one scheduled invocation to completion: hold
// Pending until the network precondition passes, then attempt the cycle
// with exponential backoff up to the attempt ceiling. The attempt counter
// belongs to the invocation; a later trigger starts fresh.
func (s *Scheduler) runInvocation(ctx context.Context) {
	s.setState(StatePending)

	if !s.awaitNetwork(ctx) {
		s.setState(StateIdle)
		return
	}

	for attempt := 1; ; attempt++ {
		s.setState(StateSyncing)
		result, err := s.syncer.PerformSync(ctx)
		if err == nil {
			s.mu.Lock()
			s.lastSyncTime = s.clock.Now()
			s.lastResult = result
			s.mu.Unlock()
			s.setState(StateIdle)
			return
		}

		if errors.Is(err, errors.ErrSyncInProgress) {
			// Another call site is already draining the same queue.
			s.setState(StateIdle)
			return
		}
		if errors.Is(err, errors.ErrNotAuthenticated) {
			logging.Warn("Sync skipped, no authenticated user", nil)
			s.setState(StateIdle)
			return
		}

		logging.ErrorWithCode("Sync cycle failed", string(errors.CodeOf(err)), err,
			map[string]interface{}{"attempt": attempt})

		if attempt >= s.cfg.MaxAttempts {
			logging.Warn("Sync invocation abandoned after repeated failures",
				map[string]interface{}{"attempts": attempt})
			s.setState(StateFailed)
			return
		}

		s.setState(StatePending)
		delay := s.cfg.BackoffBase << (attempt - 1)
		select {
		case <-ctx.Done():
			s.setState(StateIdle)
			return
		case <-s.stopCh:
			s.setState(StateIdle)
			return
		case <-s.clock.After(delay):
		}

		// A mid-flight network loss is retryable, but the next attempt
		// waits for connectivity to return first.
		if !s.awaitNetwork(ctx) {
			s.setState(StateIdle)
			return
		}
	}
}

// awaitNetwork blocks until the network precondition passes, rechecking
// periodically while offline. Returns false when the scheduler stops or
// the context ends first.
func (s *Scheduler) awaitNetwork(ctx context.Context) bool {
	for !s.network.Online() {
		logging.Debug("Network unavailable, invocation held", nil)
		select {
		case <-ctx.Done():
			return false
		case <-s.stopCh:
			return false
		case <-s.clock.After(s.cfg.OfflineRecheck):
		}
	}
	return true
}
