package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/shortlink/internal/app/model"
)

// ErrCacheMiss is returned for keys that were never set and for expired keys alike.
var ErrCacheMiss = errors.New("cache miss")

// DefaultPrefix namespaces record keys.
const DefaultPrefix = "shortlink:url:"

// URLCache is the ephemeral, TTL-bound copy of short-link records.
type URLCache interface {
	Get(ctx context.Context, identifier string) (*model.CachedURL, error)
	// Set overwrites the whole entry and resets its TTL.
	Set(ctx context.Context, identifier string, value *model.CachedURL, ttl time.Duration) error
	// Add writes the entry only when the key is absent.
	Add(ctx context.Context, identifier string, value *model.CachedURL, ttl time.Duration) (bool, error)
	// IncrHits atomically bumps the cached hit count when the entry exists.
	IncrHits(ctx context.Context, identifier string) (bool, error)
	Ping(ctx context.Context) error
}

// KEYS[1] = entry key, ARGV[1] = ttl seconds, ARGV[2:] = field/value pairs.
var addScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('EXPIRE', KEYS[1], ARGV[1])
return 1
`)

var incrHitsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('HINCRBY', KEYS[1], 'hits', 1)
`)

type redisURLCache struct {
	client *redis.Client
	prefix string
}

// NewRedisURLCache stores each record as a flat hash under prefix+identifier.
func NewRedisURLCache(client *redis.Client, prefix string) URLCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &redisURLCache{client: client, prefix: prefix}
}

func (c *redisURLCache) key(identifier string) string {
	return c.prefix + identifier
}

func (c *redisURLCache) Get(ctx context.Context, identifier string) (*model.CachedURL, error) {
	cmd := c.client.HGetAll(ctx, c.key(identifier))
	fields, err := cmd.Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrCacheMiss
	}

	var value model.CachedURL
	if err := cmd.Scan(&value); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", identifier, err)
	}
	return &value, nil
}

func (c *redisURLCache) Set(ctx context.Context, identifier string, value *model.CachedURL, ttl time.Duration) error {
	key := c.key(identifier)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fieldPairs(value)...)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (c *redisURLCache) Add(ctx context.Context, identifier string, value *model.CachedURL, ttl time.Duration) (bool, error) {
	args := append([]interface{}{ttlSeconds(ttl)}, fieldPairs(value)...)
	written, err := addScript.Run(ctx, c.client, []string{c.key(identifier)}, args...).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

func (c *redisURLCache) IncrHits(ctx context.Context, identifier string) (bool, error) {
	hits, err := incrHitsScript.Run(ctx, c.client, []string{c.key(identifier)}).Int64()
	if err != nil {
		return false, err
	}
	return hits >= 0, nil
}

func (c *redisURLCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func fieldPairs(value *model.CachedURL) []interface{} {
	enabled := 0
	if value.Enabled {
		enabled = 1
	}
	return []interface{}{
		"original_url", value.OriginalURL,
		"short_url", value.ShortURL,
		"enabled", enabled,
		"hits", value.Hits,
	}
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
