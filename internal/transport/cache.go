package transport

import (
	"time"

	"github.com/revittco/mcplexer/internal/cache"
)

type cacheKey struct {
	configHash      string
	authIdentity    string
	storageIdentity string
}

// Cache memoizes transports by (config, auth identity, storage identity)
// per spec §4.D. No expiry rule is specified for the transport cache, so
// entries use a long fixed TTL (the knob exists only because the
// underlying cache requires one) and a generous entry cap to bound
// memory if many distinct auth-scoped transports churn through.
type Cache struct {
	inner *cache.Cache[cacheKey, Transport]
}

// NewCache creates a transport cache with the default entry cap.
func NewCache() *Cache {
	return &Cache{inner: cache.New[cacheKey, Transport](1000, 24 * time.Hour)}
}

func (c *Cache) get(key cacheKey) (Transport, bool) {
	return c.inner.Get(key)
}

func (c *Cache) set(key cacheKey, t Transport) {
	c.inner.Set(key, t)
}

// Len reports how many transports are currently cached.
func (c *Cache) Len() int {
	return c.inner.Len()
}
