// Package cache stores finished image renders in Redis. Image layout is
// deterministic, so identical requests can be answered without fetching
// or compositing again.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maauso/reelcard-api/internal/render"
)

// Compile-time check that RedisCache implements render.Cache.
var _ render.Cache = (*RedisCache)(nil)

// DefaultPrefix namespaces keys written by RedisCache.
const DefaultPrefix = "reelcard:image:"

// Config holds connection settings for RedisCache.
type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a render stays cached. Zero keeps entries forever.
	TTL    time.Duration
	Prefix string
}

// RedisCache implements render.Cache on top of Redis strings.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	close  func() error
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg Config) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	c := newRedisCache(rdb, cfg.TTL, cfg.Prefix)
	c.close = rdb.Close
	return c, nil
}

func newRedisCache(client redis.Cmdable, ttl time.Duration, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

// Get returns the cached render for key. A miss is (nil, false, nil).
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores data under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, data []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}
