package repository

import (
	"context"
	"time"

	"firestore-odm/internal/odm/cache"
	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/eventbus"
	"firestore-odm/internal/shared/firestore"
	"firestore-odm/internal/shared/logger"
	"firestore-odm/internal/shared/utils"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// BaseRepository is the generic repository of one collection path
type BaseRepository struct {
	manager *Manager
	client  store.Client
	meta    *metadata.FullCollectionMetadata
	path    string
	col     store.CollectionRef
	logger  logger.Logger
}

func newBaseRepository(m *Manager, client store.Client, meta *metadata.FullCollectionMetadata, path string) *BaseRepository {
	return &BaseRepository{
		manager: m,
		client:  client,
		meta:    meta,
		path:    path,
		col:     client.Collection(path),
		logger:  m.logger.WithFields(map[string]interface{}{"collection": path}),
	}
}

// Base returns the repository itself; custom repositories inherit it by embedding
func (r *BaseRepository) Base() *BaseRepository {
	return r
}

// CollectionPath returns the path of the collection, e.g. "bands/b1/albums"
func (r *BaseRepository) CollectionPath() string {
	return r.path
}

// Metadata returns the registry entry of the collection
func (r *BaseRepository) Metadata() *metadata.FullCollectionMetadata {
	return r.meta
}

// Create writes a new document. An empty id is replaced by a generated one.
func (r *BaseRepository) Create(ctx context.Context, entity metadata.Entity) (metadata.Entity, error) {
	r.warnOutsideTransaction(ctx, "Create")
	doc, ref, err := r.prepareWrite(entity, true)
	if err != nil {
		return nil, err
	}

	if err := ref.Create(ctx, doc); err != nil {
		return nil, err
	}

	if err := r.initializeSubCollections(entity, nil); err != nil {
		return nil, err
	}
	r.manager.publish(ctx, r.event(eventbus.EventTypeDocumentCreated, ref.ID()))
	return entity, nil
}

// FindByID reads one document. A missing document is an error matching
// errors.ErrDocumentNotFound.
func (r *BaseRepository) FindByID(ctx context.Context, id string) (metadata.Entity, error) {
	if !firestore.IsValidID(id) {
		return nil, errors.NewInvalidInputError("invalid document id").WithDetail("id", id)
	}
	ref := r.col.Doc(id)

	if entity, ok := r.fromCache(ctx, ref); ok {
		if err := r.initializeSubCollections(entity, nil); err != nil {
			return nil, err
		}
		return entity, nil
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, err
	}
	r.toCache(ctx, snap)
	return r.entityFromSnapshot(snap, nil)
}

// Find runs q against the collection
func (r *BaseRepository) Find(ctx context.Context, q store.Query) ([]metadata.Entity, error) {
	snaps, err := r.col.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return r.entitiesFromSnapshots(snaps, nil)
}

// FindOne returns the first match of q
func (r *BaseRepository) FindOne(ctx context.Context, q store.Query) (metadata.Entity, error) {
	q.Limit = 1
	found, err := r.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, store.NotFound(r.path)
	}
	return found[0], nil
}

// Update overwrites the stored fields of an existing document
func (r *BaseRepository) Update(ctx context.Context, entity metadata.Entity) (metadata.Entity, error) {
	r.warnOutsideTransaction(ctx, "Update")
	doc, ref, err := r.prepareWrite(entity, false)
	if err != nil {
		return nil, err
	}

	if err := ref.Update(ctx, doc); err != nil {
		return nil, err
	}
	r.manager.publish(ctx, r.event(eventbus.EventTypeDocumentUpdated, ref.ID()))
	return entity, nil
}

// Delete removes a document. Deleting a missing document succeeds.
func (r *BaseRepository) Delete(ctx context.Context, id string) error {
	r.warnOutsideTransaction(ctx, "Delete")
	if !firestore.IsValidID(id) {
		return errors.NewInvalidInputError("invalid document id").WithDetail("id", id)
	}
	if err := r.col.Doc(id).Delete(ctx); err != nil {
		return err
	}
	r.manager.publish(ctx, r.event(eventbus.EventTypeDocumentDeleted, id))
	return nil
}

// CreateBatch returns a batch repository for this collection backed by a new batch
func (r *BaseRepository) CreateBatch() *BatchRepository {
	return newBatch(r.manager, r.client).repository(r)
}

// RunTransaction runs fn in a transaction scoped to this collection
func (r *BaseRepository) RunTransaction(ctx context.Context, fn func(ctx context.Context, repo *TransactionRepository) error) error {
	return r.manager.RunTransaction(ctx, func(ctx context.Context, tx *Transaction) error {
		return fn(ctx, tx.repository(r))
	})
}

// prepareWrite checks the entity, allocates an id when allowed and returns the
// validated document body
func (r *BaseRepository) prepareWrite(entity metadata.Entity, allocateID bool) (store.Document, store.DocumentRef, error) {
	if err := checkEntity(r.meta, entity); err != nil {
		return nil, nil, err
	}

	id := entity.GetID()
	if id == "" && !allocateID {
		return nil, nil, errors.NewInvalidInputError("entity has no id").
			WithDetail("collection", r.path)
	}
	if id != "" && !firestore.IsValidID(id) {
		return nil, nil, errors.NewInvalidInputError("invalid document id").WithDetail("id", id)
	}

	doc, err := serializeEntity(r.meta, entity)
	if err != nil {
		return nil, nil, err
	}
	if err := r.manager.validate(r.meta.EntityType, doc); err != nil {
		return nil, nil, err
	}

	ref := r.col.Doc(id)
	if id == "" {
		entity.SetID(ref.ID())
	}
	return doc, ref, nil
}

func (r *BaseRepository) entityFromSnapshot(snap *store.Snapshot, tx *Transaction) (metadata.Entity, error) {
	entity, err := materialize(r.meta, snap)
	if err != nil {
		return nil, err
	}
	if err := r.initializeSubCollections(entity, tx); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *BaseRepository) entitiesFromSnapshots(snaps []*store.Snapshot, tx *Transaction) ([]metadata.Entity, error) {
	out := make([]metadata.Entity, 0, len(snaps))
	for _, snap := range snaps {
		entity, err := r.entityFromSnapshot(snap, tx)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

// initializeSubCollections assigns a repository for each subcollection of
// the entity's document. Inside a transaction the repositories are
// transaction repositories and each assignment is recorded for rebinding.
func (r *BaseRepository) initializeSubCollections(entity metadata.Entity, tx *Transaction) error {
	for _, sub := range r.meta.SubCollections {
		if sub.ParentProps == nil || sub.ParentProps.ParentPropertyKey == "" {
			return errors.NewNoParentPropertyKeyError(sub.Name)
		}
		key := sub.ParentProps.ParentPropertyKey
		path := firestore.SubCollectionPath(r.path, entity.GetID(), sub.Name)

		var (
			repo metadata.Repository
			err  error
		)
		if tx != nil {
			repo, err = tx.GetRepository(metadata.Path(path), "")
		} else {
			repo, err = r.manager.GetRepository(metadata.Path(path), "")
		}
		if err != nil {
			return err
		}

		set, err := assignRepository(entity, sub.Name, key, repo)
		if err != nil {
			return err
		}
		set()

		if tx != nil {
			tx.refs.Add(TransactionReference{
				Entity:            entity,
				Path:              path,
				ParentPropertyKey: key,
			})
		}
	}
	return nil
}

// warnOutsideTransaction flags direct writes issued from inside a
// transaction callback; they are not part of the transaction.
func (r *BaseRepository) warnOutsideTransaction(ctx context.Context, op string) {
	if !utils.InTransaction(ctx) {
		return
	}
	ctx = utils.WithCollectionPath(utils.WithOperation(ctx, op), r.path)
	r.logger.WithContext(ctx).
		Warn("Direct repository write inside a transaction is applied immediately")
}

func (r *BaseRepository) event(kind, id string) eventbus.Event {
	return eventbus.NewDocumentEvent(kind, r.path, id, r.meta.EntityType.Name())
}

func (r *BaseRepository) fromCache(ctx context.Context, ref store.DocumentRef) (metadata.Entity, bool) {
	c := r.manager.cache
	if c == nil {
		return nil, false
	}

	raw, err := c.Get(ctx, ref.Path())
	if err != nil {
		if !cache.IsCacheMiss(err) {
			r.logger.WithFields(map[string]interface{}{"error": err}).Warn("Cache read failed")
		}
		return nil, false
	}

	entity, err := decodeEntity(r.meta, raw, ref.ID())
	if err != nil {
		_ = c.Delete(ctx, ref.Path())
		return nil, false
	}
	return entity, true
}

func (r *BaseRepository) toCache(ctx context.Context, snap *store.Snapshot) {
	c := r.manager.cache
	if c == nil {
		return
	}

	raw, err := store.EncodeDocument(snap.Data)
	if err != nil {
		return
	}
	if err := c.Set(ctx, snap.Path, raw); err != nil {
		r.logger.WithFields(map[string]interface{}{"error": err}).Warn("Cache write failed")
	}
}
