package feed

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// BodyCache stores raw feed bodies keyed by URL so repeated runs inside the
// TTL do not hit the origin again.
type BodyCache interface {
	Get(ctx context.Context, feedURL string) ([]byte, bool, error)
	Set(ctx context.Context, feedURL string, data []byte) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Feed cache connected", "addr", addr, "ttl", ttl)

	return newRedisCache(client, ttl), nil
}

func newRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, feedURL string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, CacheKey(feedURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached feed %s: %w", feedURL, err)
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, feedURL string, data []byte) error {
	if err := c.client.Set(ctx, CacheKey(feedURL), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache feed %s: %w", feedURL, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CacheKey generates a consistent cache key for a feed URL.
func CacheKey(feedURL string) string {
	hash := sha256.Sum256([]byte(feedURL))
	return fmt.Sprintf("feed:%x", hash[:8])
}
