package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// simpleRateLimiter counts requests per caller in fixed windows. A caller's
// first request opens a window; once the count reaches the limit, further
// requests are denied until the window ends.
type simpleRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu        sync.Mutex
	counters  map[string]*windowCounter
	nextSweep time.Time
}

type windowCounter struct {
	startedAt time.Time
	count     int
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &simpleRateLimiter{
		limit:    limit,
		window:   window,
		clock:    clock,
		counters: make(map[string]*windowCounter),
	}
}

func (l *simpleRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	counter := l.counters[key]
	if counter == nil || now.Sub(counter.startedAt) >= l.window {
		l.counters[key] = &windowCounter{startedAt: now, count: 1}
		return true
	}
	if counter.count >= l.limit {
		return false
	}
	counter.count++
	return true
}

// sweepLocked drops stale counters at most once per window so the map does
// not grow with one-off callers.
func (l *simpleRateLimiter) sweepLocked(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	l.nextSweep = now.Add(l.window)
	for key, counter := range l.counters {
		if now.Sub(counter.startedAt) >= l.window {
			delete(l.counters, key)
		}
	}
}
