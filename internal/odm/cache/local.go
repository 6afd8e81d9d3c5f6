package cache

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// LocalCache implements Cache in process memory
type LocalCache struct {
	prefix string
	cache  *gocache.Cache
}

// NewLocalCache creates an in-process cache with the configured TTL
func NewLocalCache(config Config) *LocalCache {
	return &LocalCache{
		prefix: config.Prefix,
		cache:  gocache.New(config.DefaultTTL, config.CleanupInterval),
	}
}

func (c *LocalCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, found := c.cache.Get(c.prefix + key)
	if !found {
		return nil, ErrCacheMiss
	}
	raw, ok := value.([]byte)
	if !ok {
		return nil, ErrCacheMiss
	}
	return raw, nil
}

func (c *LocalCache) Set(ctx context.Context, key string, value []byte) error {
	stored := append([]byte(nil), value...)
	c.cache.SetDefault(c.prefix+key, stored)
	return nil
}

func (c *LocalCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		c.cache.Delete(c.prefix + k)
	}
	return nil
}

// Len returns the number of cached entries, expired ones included
func (c *LocalCache) Len() int {
	return c.cache.ItemCount()
}

func (c *LocalCache) Close() error {
	c.cache.Flush()
	return nil
}
