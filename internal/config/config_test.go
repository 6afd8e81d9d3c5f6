package config

import (
	"testing"
	"time"

	"firestore-odm/internal/odm/cache"
	"firestore-odm/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreMongoDB, cfg.StoreBackend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "documents", cfg.Mongo.DocumentsCollection)
	assert.True(t, cfg.ODM.ThrowOnDuplicatedCollection)
	assert.False(t, cfg.ODM.ValidateModels)
	assert.Equal(t, cache.BackendNone, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.GetAddr())
	assert.Equal(t, "0.0.0.0:3030", cfg.Server.Addr())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("STORE_BACKEND", " Memory ")
	t.Setenv("ODM_VALIDATE_MODELS", "true")
	t.Setenv("ODM_THROW_ON_DUPLICATED_COLLECTION", "false")
	t.Setenv("ODM_VALIDATOR_STOP_AT_FIRST_ERROR", "true")
	t.Setenv("CACHE_BACKEND", "REDIS")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("LOG_BACKEND", "zap")
	t.Setenv("SERVER_PORT", "9000")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "zap", cfg.LoggerConfig().Backend)
	assert.Equal(t, "INFO", cfg.LoggerConfig().Level)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())

	meta := cfg.MetadataConfig()
	assert.True(t, meta.ValidateModels)
	assert.False(t, meta.ThrowOnDuplicatedCollection)
	assert.True(t, meta.ValidatorOptions.StopAtFirstError)

	cc := cfg.CacheConfig()
	assert.Equal(t, cache.BackendRedis, cc.Backend)
	assert.Equal(t, 30*time.Second, cc.DefaultTTL)
	assert.Equal(t, "cache.internal:6380", cc.Redis.Addr)
	assert.Equal(t, 2, cc.Redis.DB)
}

func TestLoadConfig_MongoDBMapping(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("MONGODB_DATABASE", "music")
	t.Setenv("MONGODB_DOCUMENTS_COLLECTION", "docs")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	mc := cfg.MongoDBConfig()
	assert.Equal(t, "mongodb://db:27017", mc.URI)
	assert.Equal(t, "music", mc.Database)
	assert.Equal(t, "docs", mc.Collection)
	assert.Equal(t, 10*time.Second, mc.ConnectTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown store", map[string]string{"STORE_BACKEND": "postgres"}, "STORE_BACKEND"},
		{"unknown cache", map[string]string{"CACHE_BACKEND": "memcached"}, "CACHE_BACKEND"},
		{"zero ttl", map[string]string{"CACHE_BACKEND": "local", "CACHE_TTL": "0s"}, "CACHE_TTL"},
		{"bad bool", map[string]string{"ODM_VALIDATE_MODELS": "maybe"}, `field "ValidateModels"`},
		{"bad duration", map[string]string{"CACHE_TTL": "soon"}, `field "TTL"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestValidate_MemoryStoreIgnoresMongo(t *testing.T) {
	cfg := &Config{StoreBackend: StoreMemory, Cache: CacheConfig{Backend: cache.BackendNone}}
	assert.NoError(t, cfg.Validate())

	cfg.StoreBackend = StoreMongoDB
	err := cfg.Validate()
	assert.ErrorContains(t, err, "MONGODB_URI")

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "MONGODB_URI", appErr.Details["key"])
}
