package di

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"firestore-odm/internal/config"
	odmhttp "firestore-odm/internal/odm/adapter/http"
	"firestore-odm/internal/odm/cache"
	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/repository"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/odm/store/memory"
	"firestore-odm/internal/odm/store/mongodb"
	"firestore-odm/internal/shared/eventbus"
	"firestore-odm/internal/shared/logger"
)

// pinger is implemented by connections that can report their health
type pinger interface {
	Ping(ctx context.Context) error
}

// Container wires the ODM runtime with proper lifecycle management
type Container struct {
	mu        sync.RWMutex
	services  map[reflect.Type]interface{}
	factories map[reflect.Type]func() (interface{}, error)

	Config   *config.Config
	Logger   logger.Logger
	Store    store.Client
	Cache    cache.Cache
	Events   eventbus.EventBusInterface
	Metadata *metadata.MetadataStorage
	Manager  *repository.Manager
	Admin    *odmhttp.Handler
}

// NewContainer creates a container for cfg. A nil logger is built from the
// logging section of cfg.
func NewContainer(cfg *config.Config, log logger.Logger) *Container {
	if log == nil {
		log = logger.New(cfg.LoggerConfig())
	}
	return &Container{
		services:  make(map[reflect.Type]interface{}),
		factories: make(map[reflect.Type]func() (interface{}, error)),
		Config:    cfg,
		Logger:    log,
	}
}

// InitializeStore connects the configured document store
func (c *Container) InitializeStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.Config.StoreBackend {
	case config.StoreMemory:
		c.Store = memory.NewClient(memory.WithLogger(c.Logger))
		c.Logger.Warn("Using the in-memory document store; data is lost on exit")
	case config.StoreMongoDB:
		client, err := mongodb.Connect(ctx, c.Config.MongoDBConfig(), c.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect document store: %w", err)
		}
		c.Store = client
	default:
		return fmt.Errorf("unknown store backend %q", c.Config.StoreBackend)
	}
	return nil
}

// InitializeODM builds the registry, cache and repository manager and
// attaches the store. InitializeStore must run first.
func (c *Container) InitializeODM() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Store == nil {
		return fmt.Errorf("document store must be initialized before the ODM")
	}

	docCache, err := cache.New(c.Config.CacheConfig(), c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create document cache: %w", err)
	}
	c.Cache = docCache

	c.Events = eventbus.NewEventBusWithConfig(c.Logger, eventbus.DefaultBusConfig())
	c.Metadata = metadata.NewMetadataStorage(c.Config.MetadataConfig(), c.Logger)

	opts := []repository.Option{
		repository.WithLogger(c.Logger),
		repository.WithEventBus(c.Events),
	}
	if docCache != nil {
		opts = append(opts, repository.WithCache(docCache))
	}

	manager, err := repository.NewManager(c.Metadata, opts...)
	if err != nil {
		return fmt.Errorf("failed to create repository manager: %w", err)
	}
	manager.Initialize(c.Store)
	c.Manager = manager

	c.Admin = odmhttp.NewHandler(c.Metadata, c.Logger)
	c.Admin.AddCheck("store", c.check(c.Store))
	if docCache != nil {
		c.Admin.AddCheck("cache", c.check(docCache))
	}

	c.services[reflect.TypeOf(c.Metadata)] = c.Metadata
	c.services[reflect.TypeOf(c.Manager)] = c.Manager
	return nil
}

// check turns a connection into a health check; connections without Ping are always healthy
func (c *Container) check(conn interface{}) odmhttp.HealthChecker {
	return func() error {
		p, ok := conn.(pinger)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.Ping(ctx)
	}
}

// Register registers a service instance under its concrete type
func (c *Container) Register(service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[reflect.TypeOf(service)] = service
}

// RegisterFactory registers a lazily built service
func (c *Container) RegisterFactory(serviceType reflect.Type, factory func() (interface{}, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[serviceType] = factory
}

// Resolve resolves a service by type, building and caching it from its factory when needed
func (c *Container) Resolve(serviceType reflect.Type) (interface{}, error) {
	c.mu.RLock()
	if service, exists := c.services[serviceType]; exists {
		c.mu.RUnlock()
		return service, nil
	}
	factory, exists := c.factories[serviceType]
	c.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("service of type %v not registered", serviceType)
	}

	service, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.services[serviceType]; ok {
		return existing, nil
	}
	c.services[serviceType] = service
	return service, nil
}

// GetService is a generic helper for resolving services
func GetService[T any](c *Container) (T, error) {
	var zero T
	service, err := c.Resolve(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("service is not of expected type %T", zero)
	}
	return typed, nil
}

// HealthCheck pings the store and cache connections
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.Store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("document store health check failed: %w", err)
		}
	}
	if p, ok := c.Cache.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("cache health check failed: %w", err)
		}
	}
	return nil
}

// Cleanup releases resources in reverse order of initialization
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		}
		c.Cache = nil
	}

	// the manager owns the attached store connection
	if c.Manager != nil {
		if err := c.Manager.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close document store: %w", err))
		}
		c.Manager = nil
	} else if c.Store != nil {
		if err := c.Store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close document store: %w", err))
		}
	}
	c.Store = nil

	for _, service := range c.services {
		if cleaner, ok := service.(interface{ Cleanup(context.Context) error }); ok {
			if err := cleaner.Cleanup(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to cleanup service: %w", err))
			}
		}
	}
	c.services = make(map[reflect.Type]interface{})
	c.factories = make(map[reflect.Type]func() (interface{}, error))

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// Close shuts down every resource with a 30 second timeout
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Cleanup(ctx); err != nil {
		c.Logger.Warnf("Cleanup errors occurred: %v", err)
		return err
	}
	c.Logger.Info("Container resources closed")
	return nil
}
