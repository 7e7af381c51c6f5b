package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultSeenTTL = 24 * time.Hour

// SeenCache is a fast-path record of inbound messages already persisted. It
// may forget entries; the database insert stays authoritative.
type SeenCache interface {
	Seen(ctx context.Context, accountID uuid.UUID, providerID string) (bool, error)
	Mark(ctx context.Context, accountID uuid.UUID, providerID string) error
}

// NopSeenCache never reports a message as seen. Used when Redis is not
// configured.
type NopSeenCache struct{}

func (NopSeenCache) Seen(context.Context, uuid.UUID, string) (bool, error) { return false, nil }

func (NopSeenCache) Mark(context.Context, uuid.UUID, string) error { return nil }

// redisKV is the subset of the Redis client used by the seen-cache.
type redisKV interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSeenCache keeps seen message ids as expiring Redis keys.
type RedisSeenCache struct {
	client redisKV
	ttl    time.Duration
}

// NewRedisSeenCache creates a RedisSeenCache. A non-positive ttl uses 24h.
func NewRedisSeenCache(client redisKV, ttl time.Duration) *RedisSeenCache {
	if ttl <= 0 {
		ttl = defaultSeenTTL
	}
	return &RedisSeenCache{client: client, ttl: ttl}
}

// Seen implements SeenCache.
func (c *RedisSeenCache) Seen(ctx context.Context, accountID uuid.UUID, providerID string) (bool, error) {
	n, err := c.client.Exists(ctx, seenKey(accountID, providerID)).Result()
	if err != nil {
		return false, fmt.Errorf("check seen message: %w", err)
	}
	return n > 0, nil
}

// Mark implements SeenCache.
func (c *RedisSeenCache) Mark(ctx context.Context, accountID uuid.UUID, providerID string) error {
	if err := c.client.Set(ctx, seenKey(accountID, providerID), 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("mark seen message: %w", err)
	}
	return nil
}

func seenKey(accountID uuid.UUID, providerID string) string {
	return "inbound:" + accountID.String() + ":" + providerID
}
