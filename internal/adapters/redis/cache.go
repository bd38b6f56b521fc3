package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// TryLock sets key to token only when the key is absent.
func (c *Cache) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, key, token, ttl)
	return res.Val(), res.Err()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release deletes key only while it still holds token.
func (c *Cache) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, c.client, []string{key}, token).Err()
}
