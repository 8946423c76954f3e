// Package scheduler runs the crawl worker pool with politeness controls.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter combines a global requests-per-second ceiling with a minimum
// per-host spacing.
type Limiter struct {
	global *rate.Limiter

	mu           sync.Mutex
	lastAccess   map[string]time.Time
	perHostDelay time.Duration
}

// NewLimiter creates a limiter. rps <= 0 disables the global ceiling.
func NewLimiter(rps float64, perHostDelay time.Duration) *Limiter {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps) + 1
	}
	return &Limiter{
		global:       rate.NewLimiter(limit, burst),
		lastAccess:   make(map[string]time.Time),
		perHostDelay: perHostDelay,
	}
}

// Wait blocks until a request to host is allowed, or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	last, seen := l.lastAccess[host]
	l.mu.Unlock()

	if seen && l.perHostDelay > 0 {
		if wait := l.perHostDelay - time.Since(last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Record notes that a request to host was just made.
func (l *Limiter) Record(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastAccess[host] = time.Now()
}
