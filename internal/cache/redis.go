package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Compile-time check.
var _ Store[int] = (*Redis[int])(nil)

// Redis is a FIFO cache shared through a Redis server. Values are stored as
// JSON under <prefix>:entry:<key>; insertion order lives in the list
// <prefix>:order.
type Redis[V any] struct {
	client   *redis.Client
	prefix   string
	capacity int
}

// NewRedis creates a Redis-backed cache. An empty prefix defaults to
// "wavecode:cache".
func NewRedis[V any](client *redis.Client, prefix string, capacity int) *Redis[V] {
	if prefix == "" {
		prefix = "wavecode:cache"
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Redis[V]{client: client, prefix: prefix, capacity: capacity}
}

func (c *Redis[V]) entryKey(key string) string { return c.prefix + ":entry:" + key }
func (c *Redis[V]) orderKey() string { return c.prefix + ":order" }

// Get returns the value stored under key.
func (c *Redis[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	data, err := c.client.Get(ctx, c.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return v, true, nil
}

// putScript writes an entry and maintains the eviction order in one atomic
// step. KEYS[1] is the entry key, KEYS[2] the order list. ARGV holds the
// encoded value, the cache key, the capacity and the entry key prefix.
var putScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("SET", KEYS[1], ARGV[1])
	return 0
end
local capacity = tonumber(ARGV[3])
local evicted = 0
while redis.call("LLEN", KEYS[2]) >= capacity do
	local oldest = redis.call("LPOP", KEYS[2])
	if not oldest then
		break
	end
	redis.call("DEL", ARGV[4] .. oldest)
	evicted = evicted + 1
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("RPUSH", KEYS[2], ARGV[2])
return evicted
`)

// Put stores value under key, evicting the oldest keys while the cache is
// full. Replacing an existing key keeps its position in the eviction order.
// The check, eviction and insert run as one script so concurrent writers of
// the same key cannot duplicate it in the order list.
func (c *Redis[V]) Put(ctx context.Context, key string, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}

	keys := []string{c.entryKey(key), c.orderKey()}
	if err := putScript.Run(ctx, c.client, keys, data, key, c.capacity, c.entryKey("")).Err(); err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}

// Len returns the number of keys in the eviction order.
func (c *Redis[V]) Len(ctx context.Context) (int, error) {
	n, err := c.client.LLen(ctx, c.orderKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: llen: %w", err)
	}
	return int(n), nil
}
