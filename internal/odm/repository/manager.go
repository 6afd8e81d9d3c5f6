package repository

import (
	"context"
	"strings"
	"sync"

	"firestore-odm/internal/odm/cache"
	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/odm/validation"
	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/eventbus"
	"firestore-odm/internal/shared/firestore"
	"firestore-odm/internal/shared/logger"
	"firestore-odm/internal/shared/utils"

	"github.com/google/uuid"
)

// Manager resolves repositories for registered collections. It owns the
// store connection and the collaborators shared by every repository.
type Manager struct {
	storage *metadata.MetadataStorage

	mu     sync.RWMutex
	client store.Client

	cache     cache.Cache
	validator validation.Validator
	events    eventbus.EventBusInterface
	logger    logger.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.logger = log
		}
	}
}

// WithCache enables read-through caching of FindByID
func WithCache(c cache.Cache) Option {
	return func(m *Manager) {
		m.cache = c
	}
}

// WithValidator replaces the CEL validator used when model validation is on
func WithValidator(v validation.Validator) Option {
	return func(m *Manager) {
		m.validator = v
	}
}

// WithEventBus publishes document events on bus instead of a private bus
func WithEventBus(bus eventbus.EventBusInterface) Option {
	return func(m *Manager) {
		if bus != nil {
			m.events = bus
		}
	}
}

// NewManager builds a manager over storage. The store client is attached
// later with Initialize.
func NewManager(storage *metadata.MetadataStorage, opts ...Option) (*Manager, error) {
	if storage == nil {
		return nil, errors.NewInvalidInputError("metadata storage is required")
	}

	m := &Manager{
		storage: storage,
		logger:  logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("repository_manager")

	if m.events == nil {
		m.events = eventbus.NewEventBus(m.logger)
	}

	cfg := storage.Config()
	if cfg.ValidateModels && m.validator == nil {
		v, err := validation.NewCELValidator(cfg.ValidatorOptions, m.logger)
		if err != nil {
			return nil, err
		}
		m.validator = v
	}

	if m.cache != nil {
		m.events.SubscribeMany(m.invalidate, eventbus.DocumentEventTypes...)
	}
	return m, nil
}

// Initialize attaches the store connection. Resolutions fail with
// NoFirestoreError until it is called.
func (m *Manager) Initialize(client store.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = client
	m.logger.Info("Document store attached")
}

// Storage returns the metadata registry
func (m *Manager) Storage() *metadata.MetadataStorage {
	return m.storage
}

// Events returns the bus document events are published on
func (m *Manager) Events() eventbus.EventBusInterface {
	return m.events
}

// Close detaches and closes the store connection
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close(ctx)
}

// GetRepository returns the custom repository bound to the collection, or the
// base repository when none is bound. collectionName is required for entity
// references and ignored for paths.
func (m *Manager) GetRepository(ref metadata.EntityOrPath, collectionName string) (metadata.Repository, error) {
	return m.resolve("GetRepository", ref, collectionName, KindDefault)
}

// GetBaseRepository always returns the generic repository
func (m *Manager) GetBaseRepository(ref metadata.EntityOrPath, collectionName string) (*BaseRepository, error) {
	repo, err := m.resolve("GetBaseRepository", ref, collectionName, KindBase)
	if err != nil {
		return nil, err
	}
	return repo.(*BaseRepository), nil
}

// GetCustomRepository returns the bound custom repository and fails with
// NoCustomRepositoryError when there is none
func (m *Manager) GetCustomRepository(ref metadata.EntityOrPath, collectionName string) (metadata.Repository, error) {
	return m.resolve("GetCustomRepository", ref, collectionName, KindCustom)
}

func (m *Manager) storeClient(op string) (store.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, errors.NewNoFirestoreError(op)
	}
	return m.client, nil
}

// resolution is a located collection and the binding that applies to it
type resolution struct {
	meta    *metadata.FullCollectionMetadata
	path    string
	binding *metadata.RepositoryMetadata
}

func (m *Manager) resolve(op string, ref metadata.EntityOrPath, collectionName string, kind Kind) (metadata.Repository, error) {
	client, err := m.storeClient(op)
	if err != nil {
		return nil, err
	}

	res, err := m.locate(ref, collectionName)
	if err != nil {
		return nil, err
	}

	useCustom := kind == KindCustom || (kind == KindDefault && res.binding != nil)
	if useCustom && res.binding == nil {
		return nil, errors.NewNoCustomRepositoryError(ref.String())
	}

	base := newBaseRepository(m, client, res.meta, res.path)
	if !useCustom {
		return base, nil
	}

	repo := res.binding.Target.NewRepository(base)
	if repo == nil {
		return nil, errors.NewCustomRepositoryInheritanceError(res.meta.EntityType.Name())
	}
	if bp, ok := repo.(baseProvider); !ok || bp.Base() != base {
		return nil, errors.NewCustomRepositoryInheritanceError(res.meta.EntityType.Name()).
			WithDetail("repository", ref.String())
	}

	m.logger.WithFields(map[string]interface{}{
		"collection": res.path,
		"kind":       kind.String(),
	}).Debug("Resolved custom repository")
	return repo, nil
}

// locate finds the registry entry, the collection path and the binding for
// ref. It performs every resolution check except the store precondition.
func (m *Manager) locate(ref metadata.EntityOrPath, collectionName string) (*resolution, error) {
	var (
		name   string
		path   string
		isPath bool
	)

	switch r := ref.(type) {
	case metadata.Path:
		isPath = true
		path = strings.TrimSpace(string(r))
		last, err := firestore.GetLastSegment(path)
		if err != nil {
			return nil, err
		}
		if err := firestore.ValidateCollectionPath(path); err != nil {
			return nil, errors.NewIncompleteOrInvalidPathError(path).WithCause(err)
		}
		// the terminal segment names the collection; collectionName only
		// applies to entity references
		name = last
	case *metadata.EntityType:
		if r == nil {
			return nil, errors.NewInvalidInputError("entity type must not be nil")
		}
		if collectionName == "" {
			return nil, errors.NewNoCollectionNameError(r.Name())
		}
		name = collectionName
	default:
		return nil, errors.NewInvalidInputError("collection reference must be a Path or an *EntityType")
	}

	var (
		meta *metadata.FullCollectionMetadata
		err  error
	)
	if isPath {
		meta, err = m.storage.GetCollection(metadata.Path(path), name)
	} else {
		meta, err = m.storage.GetCollection(ref, name)
	}
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, errors.NewInvalidCollectionOrPathError(ref.String(), isPath)
	}

	binding, err := m.binding(meta.EntityType, meta.Name)
	if err != nil {
		return nil, err
	}

	if meta.IsSubCollection() {
		parent, err := m.storage.GetCollection(meta.ParentProps.ParentEntityType, meta.ParentProps.ParentCollectionName)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, errors.NewNoParentCollectionError(ref.String())
		}
		if !isPath {
			return nil, errors.NewInvalidInputError("a subcollection must be resolved by path").
				WithDetail("collection", meta.Name)
		}
	}

	if !isPath {
		path = meta.Name
	}

	return &resolution{meta: meta, path: path, binding: binding}, nil
}

// binding returns the binding for (entity, name), falling back to the
// entity-wide binding
func (m *Manager) binding(entity *metadata.EntityType, name string) (*metadata.RepositoryMetadata, error) {
	b, err := m.storage.GetRepository(entity, name)
	if err != nil || b != nil {
		return b, err
	}
	return m.storage.GetRepository(entity, "")
}

// validate runs model validation when it is enabled
func (m *Manager) validate(entity *metadata.EntityType, doc store.Document) error {
	if m.validator == nil || !m.storage.Config().ValidateModels {
		return nil
	}
	return m.validator.Validate(entity, doc)
}

func (m *Manager) publish(ctx context.Context, events ...eventbus.Event) {
	for _, e := range events {
		if err := m.events.Publish(ctx, e); err != nil {
			m.logger.WithFields(map[string]interface{}{
				"event": e.Type(),
				"error": err,
			}).Warn("Event delivery failed")
		}
	}
}

// invalidate drops the cached body of a written document
func (m *Manager) invalidate(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(eventbus.DocumentEvent)
	if !ok {
		return nil
	}
	return m.cache.Delete(ctx, e.Path)
}

// RunTransaction runs fn in a store transaction. Subcollection fields of
// entities read or created through the transaction are bound to transaction
// repositories while fn runs and rebound to live repositories once the
// transaction has committed. Nothing is rebound when fn or the commit fails.
//
// An error matching errors.ErrRebindAfterCommit means the writes are durable
// and only the rebinding failed; the transaction must not be retried.
func (m *Manager) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) error {
	client, err := m.storeClient("RunTransaction")
	if err != nil {
		return err
	}

	txID := uuid.NewString()
	ctx = utils.WithTransactionID(ctx, txID)
	ctx = utils.WithOperation(ctx, "RunTransaction")
	log := m.logger.WithContext(ctx)

	var (
		committed *Transaction
		attempts  int
	)
	err = client.RunTransaction(ctx, func(ctx context.Context, stx store.Transaction) error {
		attempts++
		committed = nil

		tx := newTransaction(m, client, stx)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		committed = tx
		return nil
	})
	if err != nil {
		log.WithFields(map[string]interface{}{
			"attempts": attempts,
			"error":    err,
		}).Debug("Transaction failed")
		return err
	}
	if committed == nil {
		return nil
	}

	log.WithFields(map[string]interface{}{
		"attempts":   attempts,
		"writes":     len(committed.events),
		"references": committed.refs.Len(),
	}).Debug("Transaction committed")

	m.publish(ctx, committed.events...)
	m.publish(ctx, eventbus.CommitEvent{
		Kind:     eventbus.EventTypeTransactionCommitted,
		Writes:   len(committed.events),
		Attempts: attempts,
		At:       nowUTC(),
	})

	if err := committed.refs.bind(m); err != nil {
		log.WithFields(map[string]interface{}{
			"references": committed.refs.Len(),
			"error":      err,
		}).Error("Failed to rebind subcollections of a committed transaction")
		return errors.NewRebindAfterCommitError(txID, err)
	}
	return nil
}

// CreateBatch returns an empty batch
func (m *Manager) CreateBatch() (*Batch, error) {
	client, err := m.storeClient("CreateBatch")
	if err != nil {
		return nil, err
	}
	return newBatch(m, client), nil
}
