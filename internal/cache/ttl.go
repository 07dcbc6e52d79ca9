package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// TTLCache is a small in-process cache with per-entry expiry. Expired entries are evicted on read.
type TTLCache[V any] struct {
	items *ttlcache.Cache[string, V]
}

func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		items: ttlcache.New[string, V](
			ttlcache.WithTTL[string, V](ttl),
			ttlcache.WithDisableTouchOnHit[string, V](),
		),
	}
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	item := c.items.Get(key)
	if item == nil {
		c.items.Delete(key)
		var zero V
		return zero, false
	}
	return item.Value(), true
}

func (c *TTLCache[V]) Set(key string, value V) {
	c.items.Set(key, value, ttlcache.DefaultTTL)
}

func (c *TTLCache[V]) Len() int {
	c.items.DeleteExpired()
	return c.items.Len()
}
