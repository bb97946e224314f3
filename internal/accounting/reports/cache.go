package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// OpeningCache stores opening balances keyed by account, party and date.
type OpeningCache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, key string, value decimal.Decimal) error
}

// OpeningKey names the cache entry for the balance strictly before date.
func OpeningKey(accountID int64, partyID *int64, date time.Time) string {
	key := fmt.Sprintf("acc_ob_%d_%s", accountID, date.Format("2006-01-02"))
	if partyID != nil {
		key += fmt.Sprintf("_p%d", *partyID)
	}
	return key
}

// RedisOpeningCache keeps opening balances in Redis with a bounded TTL.
type RedisOpeningCache struct {
	client  *redis.Client
	ttl     time.Duration
	observe func(result string)
}

// NewRedisOpeningCache constructs the cache.
func NewRedisOpeningCache(client *redis.Client, ttl time.Duration) *RedisOpeningCache {
	return &RedisOpeningCache{client: client, ttl: ttl, observe: func(string) {}}
}

// WithObserver reports each lookup as "hit", "miss" or "error".
func (c *RedisOpeningCache) WithObserver(fn func(result string)) *RedisOpeningCache {
	if fn != nil {
		c.observe = fn
	}
	return c
}

func (c *RedisOpeningCache) Get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.observe("miss")
		return decimal.Zero, false, nil
	}
	if err != nil {
		c.observe("error")
		return decimal.Zero, false, err
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		c.observe("error")
		return decimal.Zero, false, fmt.Errorf("reports: cached opening %s: %w", key, err)
	}
	c.observe("hit")
	return value, true, nil
}

func (c *RedisOpeningCache) Set(ctx context.Context, key string, value decimal.Decimal) error {
	return c.client.Set(ctx, key, value.String(), c.ttl).Err()
}
