package cache

import (
	"context"
	"errors"
	"time"

	apperrors "firestore-odm/internal/shared/errors"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on Redis
type RedisCache struct {
	client *redis.Client
	config Config
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DefaultRedisConfig returns a local Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Addr: "localhost:6379"}
}

// NewRedisCacheWithConfig dials Redis and checks the connection
func NewRedisCacheWithConfig(config Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Redis.Addr,
		Password:     config.Redis.Password,
		DB:           config.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.NewInfrastructureError("failed to connect to Redis").
			WithCause(err).
			WithDetail("addr", config.Redis.Addr)
	}

	return NewRedisCacheWithClient(client, config), nil
}

// NewRedisCacheWithClient creates a cache over an existing client
func NewRedisCacheWithClient(client *redis.Client, config Config) *RedisCache {
	return &RedisCache{
		client: client,
		config: config,
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.config.Prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return value, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.config.Prefix+key, value, r.config.DefaultTTL).Err()
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.config.Prefix + k
	}
	return r.client.Del(ctx, full...).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Ping checks the Redis connection
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
