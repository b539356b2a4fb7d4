package distributed

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// RedisLock a lease on one key, owned by the holder of value
type RedisLock struct {
	client redis.UniversalClient
	key    string
	value  string
}

// RedisLockManager hands out leases so that only one engine instance runs a
// given periodic job at a time.
type RedisLockManager struct {
	client redis.UniversalClient
}

func NewRedisLockManager(client redis.UniversalClient) *RedisLockManager {
	return &RedisLockManager{client: client}
}

// AcquireLock SET NX with a TTL. Returns ErrLockNotAcquired when another
// holder owns the key.
func (m *RedisLockManager) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (*RedisLock, error) {
	ok, err := m.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &RedisLock{client: m.client, key: key, value: value}, nil
}

// Release frees the lease. ErrLockNotHeld when it already expired and
// someone else took the key.
func (l *RedisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend resets the lease to extension from now. ErrLockNotHeld when the
// lease was lost.
func (l *RedisLock) Extend(ctx context.Context, extension time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, extension.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
