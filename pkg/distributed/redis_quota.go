package distributed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/arena-match-engine/internal/models"
)

// quotaKeyTTL outlives any calendar day in any time zone
const quotaKeyTTL = 48 * time.Hour

// reserveScript increments the counter only while it is below the limit.
// Returns 1 when a slot was taken.
var reserveScript = redis.NewScript(`
	local used = tonumber(redis.call('GET', KEYS[1]) or '0')
	local limit = tonumber(ARGV[1])
	if used >= limit then
		return 0
	end
	redis.call('INCR', KEYS[1])
	if used == 0 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return 1
`)

// RedisQuotaStore daily match counters shared by every engine instance
type RedisQuotaStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisQuotaStore(client redis.UniversalClient, keyPrefix string) *RedisQuotaStore {
	if keyPrefix == "" {
		keyPrefix = "arena:quota:"
	}
	return &RedisQuotaStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisQuotaStore) key(k models.QuotaKey) string {
	return fmt.Sprintf("%s%s:%s:%s", s.keyPrefix, k.UserID, k.Day, k.Tier)
}

// Reserve atomically takes one match slot if fewer than limit are used
func (s *RedisQuotaStore) Reserve(ctx context.Context, k models.QuotaKey, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	n, err := reserveScript.Run(ctx, s.client, []string{s.key(k)}, limit, int(quotaKeyTTL.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("quota reserve failed: %w", err)
	}
	return n == 1, nil
}

func (s *RedisQuotaStore) Count(ctx context.Context, k models.QuotaKey) (int, error) {
	raw, err := s.client.Get(ctx, s.key(k)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota count failed: %w", err)
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("corrupt quota counter %q: %w", raw, err)
	}
	return n, nil
}
