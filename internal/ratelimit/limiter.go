package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Scope string

const (
	ScopeNone   Scope = ""
	ScopeMinute Scope = "minute"
	ScopeHour   Scope = "hour"
)

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed bool
	Scope   Scope
	Reason  string
}

// RetryAfter is the hint returned to rejected clients.
func (d Decision) RetryAfter() time.Duration {
	switch d.Scope {
	case ScopeMinute:
		return time.Minute
	case ScopeHour:
		return time.Hour
	default:
		return 0
	}
}

// Limiter is an in-process sliding-window admission control keyed by an
// arbitrary identifier. It keeps no state across restarts.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	now      func() time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	l.now = now
}

// Admit records a request for identifier when it fits both windows. A
// rejected request is never recorded.
func (l *Limiter) Admit(identifier string, perMinute, perHour int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	minuteAgo := now.Add(-time.Minute)
	hourAgo := now.Add(-time.Hour)

	window := prune(l.requests[identifier], hourAgo)

	minuteCount := 0
	for _, ts := range window {
		if ts.After(minuteAgo) {
			minuteCount++
		}
	}
	hourCount := len(window)

	if minuteCount >= perMinute {
		l.store(identifier, window)
		return Decision{
			Scope:  ScopeMinute,
			Reason: fmt.Sprintf("Rate limit exceeded: %d requests per minute", perMinute),
		}
	}
	if hourCount >= perHour {
		l.store(identifier, window)
		return Decision{
			Scope:  ScopeHour,
			Reason: fmt.Sprintf("Rate limit exceeded: %d requests per hour", perHour),
		}
	}

	l.requests[identifier] = append(window, now)
	return Decision{Allowed: true}
}

// Count returns the number of recorded requests for identifier within the
// trailing hour.
func (l *Limiter) Count(identifier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	window := prune(l.requests[identifier], l.now().Add(-time.Hour))
	l.store(identifier, window)
	return len(window)
}

// Identifiers returns how many identifiers currently hold state.
func (l *Limiter) Identifiers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// StartJanitor periodically drops identifiers whose windows have emptied.
func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.compact()
			}
		}
	}()
}

func (l *Limiter) compact() {
	l.mu.Lock()
	defer l.mu.Unlock()
	hourAgo := l.now().Add(-time.Hour)
	for id, window := range l.requests {
		l.store(id, prune(window, hourAgo))
	}
}

// store must be called with mu held.
func (l *Limiter) store(identifier string, window []time.Time) {
	if len(window) == 0 {
		delete(l.requests, identifier)
		return
	}
	l.requests[identifier] = window
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// order, so the first one after cutoff bounds the retained tail.
func prune(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}
	out := make([]time.Time, len(window)-i)
	copy(out, window[i:])
	return out
}
