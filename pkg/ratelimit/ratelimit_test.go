package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTime struct {
	mu  sync.Mutex
	now time.Time
}

func newManualTime() *manualTime {
	return &manualTime{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (m *manualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func TestTokenBucket_Take(t *testing.T) {
	clock := newManualTime()
	bucket := newTokenBucket(3, 1, clock.Now)

	for i := 0; i < 3; i++ {
		d := bucket.Take()
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	denied := bucket.Take()
	assert.False(t, denied.Allowed)
	assert.Equal(t, time.Second, denied.RetryAfter)

	clock.Advance(500 * time.Millisecond)
	assert.False(t, bucket.Take().Allowed, "half a token is not enough")

	clock.Advance(500 * time.Millisecond)
	assert.True(t, bucket.Take().Allowed)
}

func TestTokenBucket_RefillCapsAtCapacity(t *testing.T) {
	clock := newManualTime()
	bucket := newTokenBucket(2, 5, clock.Now)

	bucket.Take()
	bucket.Take()
	clock.Advance(time.Hour)

	assert.True(t, bucket.Take().Allowed)
	assert.True(t, bucket.Take().Allowed)
	assert.False(t, bucket.Take().Allowed)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	clock := newManualTime()
	limiter := newRateLimiter(2, 1, clock.Now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "user:player-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, _ := limiter.Allow(ctx, "user:player-1")
	assert.False(t, d.Allowed)

	d, _ = limiter.Allow(ctx, "user:player-2")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, limiter.Size())
}

func TestRateLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	clock := newManualTime()
	limiter := newRateLimiter(2, 1, clock.Now)
	ctx := context.Background()

	limiter.Allow(ctx, "idle")
	clock.Advance(5 * time.Minute)
	limiter.Allow(ctx, "busy")

	limiter.cleanup(5 * time.Minute)

	assert.Equal(t, 1, limiter.Size())
	limiter.mu.RLock()
	_, kept := limiter.buckets["busy"]
	limiter.mu.RUnlock()
	assert.True(t, kept)
}

func TestRateLimiter_Concurrent(t *testing.T) {
	clock := newManualTime()
	limiter := newRateLimiter(10, 1, clock.Now)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := limiter.Allow(context.Background(), "shared"); d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	assert.NotPanics(t, func() {
		limiter.Stop()
		limiter.Stop()
	})
}
