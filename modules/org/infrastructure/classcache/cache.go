// Package classcache shares resolved classification lookups between
// server processes through Redis.
package classcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/os2mo/mora/modules/org/services"
)

const defaultPrefix = "mora:classes:v1:"

var _ services.ClassCache = (*Cache)(nil)

// Cache stores classes as JSON under prefixed keys with a fixed TTL.
type Cache struct {
	redis  redis.Cmdable
	prefix string
	ttl    time.Duration
}

func New(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{redis: client, prefix: defaultPrefix, ttl: ttl}
}

// NewFromURL connects to the server named by a redis:// URL.
func NewFromURL(url string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return New(redis.NewClient(opts), ttl), nil
}

func (c *Cache) Get(ctx context.Context, key string) (*services.Class, bool, error) {
	raw, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var class services.Class
	if err := json.Unmarshal(raw, &class); err != nil {
		return nil, false, err
	}
	return &class, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, class *services.Class) error {
	raw, err := json.Marshal(class)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}
