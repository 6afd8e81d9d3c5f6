// Package cache holds read-through caches for document bodies keyed by
// document path.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"firestore-odm/internal/shared/logger"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value; a missing key returns ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the default TTL
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes values; missing keys are ignored
	Delete(ctx context.Context, keys ...string) error

	// Close releases the backend
	Close() error
}

// Backend names accepted by New
const (
	BackendNone  = "none"
	BackendLocal = "local"
	BackendRedis = "redis"
)

// ErrCacheMiss is returned when a key is not found in the cache
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config selects and tunes the cache backend
type Config struct {
	Backend         string
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	Prefix          string
	Redis           RedisConfig
}

// DefaultConfig returns a disabled cache configuration
func DefaultConfig() Config {
	return Config{
		Backend:         BackendNone,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: 10 * time.Minute,
		Prefix:          "odm:doc:",
		Redis:           DefaultRedisConfig(),
	}
}

// New builds the configured backend. It returns nil, nil for BackendNone.
func New(cfg Config, log logger.Logger) (Cache, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	switch strings.ToLower(cfg.Backend) {
	case "", BackendNone:
		return nil, nil
	case BackendLocal:
		log.WithComponent("cache").Info("Using in-process document cache")
		return NewLocalCache(cfg), nil
	case BackendRedis:
		c, err := NewRedisCacheWithConfig(cfg)
		if err != nil {
			return nil, err
		}
		log.WithComponent("cache").WithFields(map[string]interface{}{
			"addr": cfg.Redis.Addr,
		}).Info("Using Redis document cache")
		return c, nil
	default:
		return nil, errors.New("unknown cache backend: " + cfg.Backend)
	}
}
