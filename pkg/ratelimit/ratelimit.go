package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Decision outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is implemented by the in-process and the Redis limiter
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// TokenBucket holds up to capacity tokens, refilled continuously at
// refillRate tokens per second.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	lastUsed   time.Time
	now        func() time.Time
}

func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity int, refillRate float64, now func() time.Time) *TokenBucket {
	t := now()
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: t,
		lastUsed:   t,
		now:        now,
	}
}

// Take consumes one token if available
func (tb *TokenBucket) Take() Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	tb.lastUsed = tb.lastRefill

	d := Decision{Limit: int(tb.capacity)}
	if tb.tokens >= 1 {
		tb.tokens--
		d.Allowed = true
	} else if tb.refillRate > 0 {
		missing := 1 - tb.tokens
		d.RetryAfter = time.Duration(math.Ceil(missing / tb.refillRate * float64(time.Second)))
	}
	d.Remaining = int(tb.tokens)
	return d
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}

func (tb *TokenBucket) idleSince(now time.Time, idle time.Duration) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens >= tb.capacity && now.Sub(tb.lastUsed) >= idle
}

// RateLimiter keeps one token bucket per key (player id or client IP)
// inside this process.
type RateLimiter struct {
	mu         sync.RWMutex
	buckets    map[string]*TokenBucket
	capacity   int
	refillRate float64
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewRateLimiter(capacity int, refillRate float64) *RateLimiter {
	rl := newRateLimiter(capacity, refillRate, time.Now)
	go rl.cleanupLoop(10 * time.Minute)
	return rl
}

func newRateLimiter(capacity int, refillRate float64, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
		now:        now,
		stop:       make(chan struct{}),
	}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	return rl.bucket(key).Take(), nil
}

func (rl *RateLimiter) bucket(key string) *TokenBucket {
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[key]; ok {
		return b
	}
	b = newTokenBucket(rl.capacity, rl.refillRate, rl.now)
	rl.buckets[key] = b
	return b
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(interval)
		case <-rl.stop:
			return
		}
	}
}

// cleanup drops buckets that are full again, i.e. unused for a while
func (rl *RateLimiter) cleanup(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if b.idleSince(now, idle) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) Size() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
