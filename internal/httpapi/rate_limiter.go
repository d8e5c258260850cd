package httpapi

import (
	"sync"
	"time"
)

// rateLimiter counts events per key over a sliding window. Each throttled
// endpoint owns its own limiter, so the budgets below stay independent.
type rateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	entries   map[string][]time.Time
	lastSweep time.Time
}

// Budgets per endpoint. Login gets room for fat-fingered retries; the
// mail-sending endpoints are tighter since each hit costs an SMTP send.
func newLoginRateLimiter() *rateLimiter  { return newRateLimiter(5*time.Minute, 10) }
func newForgotRateLimiter() *rateLimiter { return newRateLimiter(15*time.Minute, 5) }
func newResendRateLimiter() *rateLimiter { return newRateLimiter(10*time.Minute, 3) }

func newRateLimiter(window time.Duration, max int) *rateLimiter {
	return &rateLimiter{
		window:  window,
		max:     max,
		entries: make(map[string][]time.Time),
	}
}

func (l *rateLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	l.sweep(cutoff, now)

	ts := l.entries[key]
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}

	l.entries[key] = append(kept, now)
	return true
}

// sweep drops keys whose every timestamp has aged out, at most once per
// window, so abandoned IPs and emails do not pin the map forever.
func (l *rateLimiter) sweep(cutoff, now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, ts := range l.entries {
		stale := true
		for _, t := range ts {
			if t.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(l.entries, key)
		}
	}
}
