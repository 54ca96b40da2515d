package cache

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/transitline/ticketing-core/pkg/redis"
)

// deleteByPrefixScript scans and removes matching keys server-side so
// invalidating a user's ticket-list pages doesn't require round-tripping
// the full key set through the application.
const deleteByPrefixScript = `
local cursor = "0"
local deleted = 0
repeat
	local result = redis.call("SCAN", cursor, "MATCH", ARGV[1], "COUNT", 200)
	cursor = result[1]
	local keys = result[2]
	if #keys > 0 then
		deleted = deleted + redis.call("DEL", unpack(keys))
	end
until cursor == "0"
return deleted
`

// RedisCache implements Cache against the shared Redis client, adapted
// from the reference pkg/redis Lua-script helpers.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an already-connected Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	return c.client.EvalWithFallback(ctx, "delete_by_prefix", deleteByPrefixScript,
		nil, prefix+"*").Err()
}
