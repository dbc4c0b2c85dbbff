package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
)

const redisKeyPrefix = "quote:"

// RedisCache implements the distributed tier on Redis.
// Keys are quote:{SYMBOL}; values are JSON-serialized quotes with the cache
// TTL enforced by Redis expiry.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get fetches a quote; a missing key is a miss, not an error.
func (r *RedisCache) Get(ctx context.Context, symbol string) (domain.Quote, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Quote{}, false, nil
	}
	if err != nil {
		return domain.Quote{}, false, err
	}

	var q domain.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Quote{}, false, fmt.Errorf("corrupt cached quote for %s: %w", symbol, err)
	}
	return q, true, nil
}

// Set stores a quote with the given TTL.
func (r *RedisCache) Set(ctx context.Context, symbol string, q domain.Quote, ttl time.Duration) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKeyPrefix+symbol, raw, ttl).Err()
}

// Close releases the connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
