// Package ratelimit implements an optional publish-side admission gate: a
// per-category token bucket that treats a denied token identically to a
// capacity drop.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/coachpo/eventloop/internal/event"
)

// Limiter gates admissions per category using an independent token bucket
// for each category, created lazily on first use. A Limiter constructed
// with a non-positive rate allows every admission, so callers can wire it
// unconditionally and let configuration decide whether it does anything.
type Limiter struct {
	mu       sync.Mutex
	limiters map[event.Category]*rate.Limiter
	rps      float64
	burst    int
}

// New constructs a Limiter enforcing rps events/sec with the given burst,
// independently per category.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[event.Category]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// Allow reports whether an admission for cat is permitted right now.
func (l *Limiter) Allow(cat event.Category) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[cat]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rps), l.burst)
		l.limiters[cat] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
