package secrets

import (
	"context"
	"time"

	"github.com/griffin-open-source/griffin-sub001/infrastructure/cache"
)

// ttlCache adapts the shared TTL cache to store plain string secret values.
type ttlCache struct {
	inner *cache.TTLCache
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{inner: cache.NewTTLCache(ttl)}
}

func (c *ttlCache) Get(key string) (string, bool) {
	v, ok := c.inner.Get(context.Background(), key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (c *ttlCache) Set(key, value string) {
	c.inner.Set(context.Background(), key, value)
}
