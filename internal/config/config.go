// Package config loads process configuration from the environment
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"firestore-odm/internal/odm/cache"
	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store/mongodb"
	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/logger"

	"github.com/caarlos0/env/v6"
)

const (
	StoreMongoDB = "mongodb"
	StoreMemory  = "memory"
)

// MongoConfig locates the document store
type MongoConfig struct {
	URI                 string        `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	Database            string        `env:"MONGODB_DATABASE" envDefault:"firestore_odm"`
	DocumentsCollection string        `env:"MONGODB_DOCUMENTS_COLLECTION" envDefault:"documents"`
	ConnectTimeout      time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
}

// ODMConfig holds the registry and validation switches
type ODMConfig struct {
	ValidateModels              bool `env:"ODM_VALIDATE_MODELS" envDefault:"false"`
	ThrowOnDuplicatedCollection bool `env:"ODM_THROW_ON_DUPLICATED_COLLECTION" envDefault:"true"`
	RejectDuplicatedRepository  bool `env:"ODM_REJECT_DUPLICATED_REPOSITORY" envDefault:"false"`
	StopAtFirstError            bool `env:"ODM_VALIDATOR_STOP_AT_FIRST_ERROR" envDefault:"false"`
}

// RedisConfig holds the Redis connection used by the redis cache backend
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	Database int    `env:"REDIS_DB" envDefault:"0"`
}

// GetAddr returns host:port
func (r RedisConfig) GetAddr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// CacheConfig selects the document cache
type CacheConfig struct {
	Backend         string        `env:"CACHE_BACKEND" envDefault:"none"`
	TTL             time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	CleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"10m"`
	Prefix          string        `env:"CACHE_PREFIX" envDefault:"odm:doc:"`
	Redis           RedisConfig
}

// LogConfig selects the logging backend
type LogConfig struct {
	Level   string `env:"LOG_LEVEL" envDefault:"INFO"`
	Format  string `env:"LOG_FORMAT" envDefault:"text"`
	Backend string `env:"LOG_BACKEND" envDefault:"logrus"`
}

// ServerConfig holds the admin HTTP listener
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port string `env:"SERVER_PORT" envDefault:"3030"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// Config is the root configuration of the process
type Config struct {
	StoreBackend string `env:"STORE_BACKEND" envDefault:"mongodb"`
	Mongo        MongoConfig
	ODM          ODMConfig
	Cache        CacheConfig
	Log          LogConfig
	Server       ServerConfig
}

// LoadConfig parses the environment and validates the result
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.NewValidationError("failed to load configuration from environment").WithCause(err)
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and incomplete store settings
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreMongoDB:
		if c.Mongo.URI == "" {
			return errors.NewValidationError("MONGODB_URI is required for the mongodb store").
				WithDetail("key", "MONGODB_URI")
		}
		if c.Mongo.Database == "" {
			return errors.NewValidationError("MONGODB_DATABASE is required for the mongodb store").
				WithDetail("key", "MONGODB_DATABASE")
		}
	default:
		return errors.NewValidationError(fmt.Sprintf("unknown STORE_BACKEND %q", c.StoreBackend)).
			WithDetail("key", "STORE_BACKEND")
	}

	switch c.Cache.Backend {
	case cache.BackendNone, cache.BackendLocal, cache.BackendRedis:
	default:
		return errors.NewValidationError(fmt.Sprintf("unknown CACHE_BACKEND %q", c.Cache.Backend)).
			WithDetail("key", "CACHE_BACKEND")
	}
	if c.Cache.Backend != cache.BackendNone && c.Cache.TTL <= 0 {
		return errors.NewValidationError("CACHE_TTL must be positive").
			WithDetail("key", "CACHE_TTL")
	}
	return nil
}

// MetadataConfig maps the ODM switches onto the registry configuration
func (c *Config) MetadataConfig() metadata.Config {
	return metadata.Config{
		ValidateModels:              c.ODM.ValidateModels,
		ThrowOnDuplicatedCollection: c.ODM.ThrowOnDuplicatedCollection,
		RejectDuplicatedRepository:  c.ODM.RejectDuplicatedRepository,
		ValidatorOptions: metadata.ValidatorOptions{
			StopAtFirstError: c.ODM.StopAtFirstError,
		},
	}
}

// MongoDBConfig maps the store settings onto the MongoDB client configuration
func (c *Config) MongoDBConfig() mongodb.Config {
	return mongodb.Config{
		URI:            c.Mongo.URI,
		Database:       c.Mongo.Database,
		Collection:     c.Mongo.DocumentsCollection,
		ConnectTimeout: c.Mongo.ConnectTimeout,
	}
}

// CacheConfig maps the cache settings onto the cache configuration
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Backend:         c.Cache.Backend,
		DefaultTTL:      c.Cache.TTL,
		CleanupInterval: c.Cache.CleanupInterval,
		Prefix:          c.Cache.Prefix,
		Redis: cache.RedisConfig{
			Addr:     c.Cache.Redis.GetAddr(),
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.Database,
		},
	}
}

// LoggerConfig maps the logging settings onto the logger configuration
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Backend: c.Log.Backend,
		Level:   c.Log.Level,
		Format:  c.Log.Format,
	}
}
