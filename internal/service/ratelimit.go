package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is an in-memory per-key rate limiter backed by token buckets.
// It is safe for concurrent use. Keys idle for longer than the idle timeout
// are dropped by a background sweep until Stop is called.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idle     time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	limiter *rate.Limiter
	last    time.Time
}

// NewRateLimiter creates a limiter that allows bursts of up to burst calls
// per key, refilling at perSecond tokens per second. It starts a goroutine
// that removes keys unused for 10 minutes.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		stop:     make(chan struct{}),
	}
	go rl.cleanup(5 * time.Minute)
	return rl
}

// Allow reports whether the given key may proceed. Each allowed call
// consumes one token.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = e
	}
	e.last = now
	return e.limiter.AllowN(now, 1)
}

// Len returns the number of keys currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Stop ends the background sweep. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Sweep removes keys that have not been used since before cutoff.
func (rl *RateLimiter) Sweep(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, e := range rl.limiters {
		if e.last.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Sweep(time.Now().Add(-rl.idle))
		case <-rl.stop:
			return
		}
	}
}
