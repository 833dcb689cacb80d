package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock advances itself whenever the scheduler sleeps, so tests measure
// gaps in simulated time without real waiting.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// stuckClock never fires its timers. Used to verify context cancellation.
type stuckClock struct {
	now time.Time
}

func (c *stuckClock) Now() time.Time { return c.now }

func (c *stuckClock) After(d time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

func TestScheduler_FirstAcquireIsImmediate(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(10*time.Second, 100*time.Millisecond, clock)

	before := clock.Now()
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !clock.Now().Equal(before) {
		t.Errorf("first Acquire advanced the clock by %v, want no wait", clock.Now().Sub(before))
	}
}

func TestScheduler_MinIntervalBetweenSends(t *testing.T) {
	const minInterval = 10 * time.Second

	clock := newFakeClock()
	s := NewScheduler(minInterval, 100*time.Millisecond, clock)
	ctx := context.Background()

	var sends []time.Time
	for i := 0; i < 5; i++ {
		if err := s.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i, err)
		}
		sends = append(sends, clock.Now())
	}

	for i := 1; i < len(sends); i++ {
		gap := sends[i].Sub(sends[i-1])
		if gap < minInterval {
			t.Errorf("gap between send %d and %d = %v, want >= %v", i-1, i, gap, minInterval)
		}
	}
}

func TestScheduler_WindowPartiallyElapsed(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(10*time.Second, 100*time.Millisecond, clock)
	ctx := context.Background()

	if err := s.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	first := clock.Now()

	// 4s of the window already spent elsewhere; only 6s remain.
	clock.now = clock.now.Add(4 * time.Second)

	if err := s.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	gap := clock.Now().Sub(first)
	if gap != 10*time.Second {
		t.Errorf("second send at +%v, want +10s exactly", gap)
	}
}

func TestScheduler_AcquireCancelled(t *testing.T) {
	clock := &stuckClock{now: time.Now()}
	s := NewScheduler(10*time.Second, 100*time.Millisecond, clock)

	// Consume the window so the next Acquire has to wait.
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Acquire(ctx)
	if err != context.Canceled {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestScheduler_DelayHit(t *testing.T) {
	const orderingDelay = 100 * time.Millisecond

	clock := newFakeClock()
	s := NewScheduler(10*time.Second, orderingDelay, clock)

	before := clock.Now()
	if err := s.DelayHit(context.Background()); err != nil {
		t.Fatalf("DelayHit() error = %v", err)
	}
	if got := clock.Now().Sub(before); got != orderingDelay {
		t.Errorf("DelayHit waited %v, want %v", got, orderingDelay)
	}
}

func TestScheduler_DelayHitDoesNotConsumeWindow(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(10*time.Second, 100*time.Millisecond, clock)
	ctx := context.Background()

	if err := s.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	first := clock.Now()

	for i := 0; i < 3; i++ {
		if err := s.DelayHit(ctx); err != nil {
			t.Fatalf("DelayHit() error = %v", err)
		}
	}

	if err := s.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	gap := clock.Now().Sub(first)
	if gap != 10*time.Second {
		t.Errorf("second send at +%v, want +10s regardless of cache hits", gap)
	}
}

func TestScheduler_ZeroOrderingDelay(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(10*time.Second, 0, clock)

	before := clock.Now()
	if err := s.DelayHit(context.Background()); err != nil {
		t.Fatalf("DelayHit() error = %v", err)
	}
	if !clock.Now().Equal(before) {
		t.Error("DelayHit with zero delay should not wait")
	}
}
