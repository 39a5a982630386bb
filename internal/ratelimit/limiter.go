package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdle = 5 * time.Minute
	sweepEvery  = 256
)

// Limiter keeps one token bucket per client key. Buckets idle longer
// than the idle window are swept on the way through Allow.
type Limiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	calls   uint64
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// New returns nil when rps or burst is not positive; a nil Limiter
// allows everything.
func New(rps float64, burst int, idle time.Duration) *Limiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idle <= 0 {
		idle = defaultIdle
	}
	return &Limiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from key's bucket at now.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	ok = b.lim.AllowN(now, 1)

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}
	return ok
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idle)
	for k, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}
