package translation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"video-dubber/internal/config"
	"video-dubber/internal/logger"
)

// CacheKey identifies a translation by source text and provider language code.
type CacheKey struct {
	Text string
	Lang string
}

// Cache stores finished translations. Implementations must be safe for
// concurrent use by several jobs.
type Cache interface {
	Get(ctx context.Context, key CacheKey) (string, bool)
	Set(ctx context.Context, key CacheKey, value string)
}

// LRUCache is a bounded in-process cache that evicts the least recently
// used entry once capacity is reached.
type LRUCache struct {
	entries *lru.Cache[CacheKey, string]
}

// NewLRUCache creates an in-process cache holding at most capacity entries.
func NewLRUCache(capacity int) (*LRUCache, error) {
	if capacity <= 0 {
		capacity = config.DefaultCacheCapacity
	}
	entries, err := lru.New[CacheKey, string](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUCache{entries: entries}, nil
}

func (c *LRUCache) Get(_ context.Context, key CacheKey) (string, bool) {
	return c.entries.Get(key)
}

func (c *LRUCache) Set(_ context.Context, key CacheKey, value string) {
	c.entries.Add(key, value)
}

// Len returns the number of cached translations.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

// RedisCache shares translations between server instances. Entries expire
// after ttl. Redis errors are logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = config.RedisCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "video-dubber:translation:"}
}

func (c *RedisCache) key(k CacheKey) string {
	sum := sha256.Sum256([]byte(k.Text))
	return c.prefix + k.Lang + ":" + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, key CacheKey) (string, bool) {
	v, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Translation cache get failed: %v", err)
		}
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key CacheKey, value string) {
	if err := c.client.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		logger.Warn("Translation cache set failed: %v", err)
	}
}

// Close releases the redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NewCache builds the cache backend named by backend ("memory" or "redis").
func NewCache(ctx context.Context, backend string, capacity int, redisAddr string) (Cache, error) {
	switch backend {
	case "", "memory":
		return NewLRUCache(capacity)
	case "redis":
		return NewRedisCache(ctx, redisAddr, config.RedisCacheTTL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
