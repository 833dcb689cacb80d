// Package ratelimit implements request scheduling for the catalog client.
// It enforces the minimum spacing between consecutive live catalog requests
// and the small fixed ordering delay applied to cache hits so that cached
// and live results interleave deterministically within a batch.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for request scheduling.
var (
	catalogLiveSendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_live_sends_total",
		Help: "Total number of live catalog requests released by the scheduler",
	})

	catalogWindowWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_window_wait_seconds",
		Help:    "Time spent waiting for the rate-limit window to open",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	catalogOrderingDelaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_ordering_delays_total",
		Help: "Total number of ordering delays applied to cache hits",
	})
)

// Scheduler gates live catalog requests. It is an explicit object rather
// than package state so tests can inject a Clock and callers cannot couple
// through hidden globals. Safe for concurrent use.
type Scheduler struct {
	mu       sync.Mutex
	lastSend time.Time

	clock         Clock
	minInterval   time.Duration
	orderingDelay time.Duration
}

// NewScheduler creates a scheduler enforcing minInterval between live sends
// and orderingDelay on cache hits. A nil clock falls back to SystemClock.
func NewScheduler(minInterval, orderingDelay time.Duration, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		clock:         clock,
		minInterval:   minInterval,
		orderingDelay: orderingDelay,
	}
}

// Acquire blocks until the rate-limit window opens, then stamps the send
// time and returns. The stamp is taken at the moment of return (send time,
// not completion), so a request that later times out still consumes the
// window. The window is re-checked after every sleep: another goroutine may
// have claimed it in the meantime.
func (s *Scheduler) Acquire(ctx context.Context) error {
	waitStart := s.clock.Now()

	for {
		s.mu.Lock()
		now := s.clock.Now()
		next := s.lastSend.Add(s.minInterval)
		if s.lastSend.IsZero() || !now.Before(next) {
			s.lastSend = now
			s.mu.Unlock()

			catalogLiveSendsTotal.Inc()
			catalogWindowWaitSeconds.Observe(now.Sub(waitStart).Seconds())
			return nil
		}
		wait := next.Sub(now)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(wait):
		}
	}
}

// DelayHit imposes the fixed ordering delay for a cache hit. It does not
// consume the rate-limit window.
func (s *Scheduler) DelayHit(ctx context.Context) error {
	if s.orderingDelay <= 0 {
		return nil
	}

	catalogOrderingDelaysTotal.Inc()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(s.orderingDelay):
		return nil
	}
}

// MinInterval returns the configured spacing between live sends.
func (s *Scheduler) MinInterval() time.Duration {
	return s.minInterval
}

// OrderingDelay returns the configured cache-hit delay.
func (s *Scheduler) OrderingDelay() time.Duration {
	return s.orderingDelay
}
