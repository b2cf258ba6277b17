// Package ratelimit throttles clients with fixed-window counters kept in the
// shared store, so every process behind a load balancer sees the same counts.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"whatbeats/internal/logging"
	"whatbeats/internal/store"
)

// Limiter allows at most limit requests per key in each window.
type Limiter struct {
	counters store.CounterStore
	limit    int64
	window   time.Duration
	now      func() time.Time
}

// New returns a limiter backed by counters.
func New(counters store.CounterStore, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		counters: counters,
		limit:    int64(limit),
		window:   window,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Decision describes one Allow call.
type Decision struct {
	Allowed bool
	Count   int64
	Limit   int64
	ResetAt time.Time
}

// Allow records a request for key and reports whether it is within limit.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	start := now.Truncate(l.window)
	reset := start.Add(l.window)

	n, err := l.counters.IncrementWindow(ctx, key, start, reset)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count request for %s: %w", key, err)
	}

	d := Decision{Allowed: n <= l.limit, Count: n, Limit: l.limit, ResetAt: reset}
	if !d.Allowed && n == l.limit+1 {
		logging.Get(logging.CategoryRateLimit).Warn("Client %s exceeded %d requests per %v", key, l.limit, l.window)
	}
	return d, nil
}
