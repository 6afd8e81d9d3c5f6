package repository

import (
	"context"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/eventbus"
)

// Batch queues writes across collections and commits them atomically
type Batch struct {
	manager   *Manager
	client    store.Client
	batch     store.WriteBatch
	events    []eventbus.Event
	committed bool
}

func newBatch(m *Manager, client store.Client) *Batch {
	return &Batch{
		manager: m,
		client:  client,
		batch:   client.Batch(),
	}
}

// GetRepository returns a batch repository for a collection. Custom bindings
// do not apply to batches.
func (b *Batch) GetRepository(ref metadata.EntityOrPath, collectionName string) (*BatchRepository, error) {
	res, err := b.manager.locate(ref, collectionName)
	if err != nil {
		return nil, err
	}
	return b.repository(newBaseRepository(b.manager, b.client, res.meta, res.path)), nil
}

func (b *Batch) repository(base *BaseRepository) *BatchRepository {
	return &BatchRepository{base: base, batch: b}
}

// Len returns the number of queued writes
func (b *Batch) Len() int {
	return b.batch.Len()
}

// Commit applies every queued write. A batch commits once.
func (b *Batch) Commit(ctx context.Context) error {
	if b.committed {
		return store.InvalidTransaction("batch already committed")
	}
	if err := b.batch.Commit(ctx); err != nil {
		return err
	}
	b.committed = true

	b.manager.publish(ctx, b.events...)
	b.manager.publish(ctx, eventbus.CommitEvent{
		Kind:   eventbus.EventTypeBatchCommitted,
		Writes: len(b.events),
		At:     nowUTC(),
	})
	return nil
}

// BatchRepository queues writes for one collection on a batch. Entities are
// validated when queued.
type BatchRepository struct {
	base  *BaseRepository
	batch *Batch
}

func (r *BatchRepository) CollectionPath() string {
	return r.base.path
}

func (r *BatchRepository) Metadata() *metadata.FullCollectionMetadata {
	return r.base.meta
}

// Create queues a create. An empty id is replaced by a generated one.
func (r *BatchRepository) Create(entity metadata.Entity) error {
	if err := r.check(); err != nil {
		return err
	}
	doc, ref, err := r.base.prepareWrite(entity, true)
	if err != nil {
		return err
	}
	r.batch.batch.Create(ref, doc)
	r.record(eventbus.EventTypeDocumentCreated, ref.ID())
	return nil
}

// Set queues a full overwrite, creating the document when missing
func (r *BatchRepository) Set(entity metadata.Entity) error {
	if err := r.check(); err != nil {
		return err
	}
	doc, ref, err := r.base.prepareWrite(entity, false)
	if err != nil {
		return err
	}
	r.batch.batch.Set(ref, doc)
	r.record(eventbus.EventTypeDocumentUpdated, ref.ID())
	return nil
}

// Update queues an update of an existing document
func (r *BatchRepository) Update(entity metadata.Entity) error {
	if err := r.check(); err != nil {
		return err
	}
	doc, ref, err := r.base.prepareWrite(entity, false)
	if err != nil {
		return err
	}
	r.batch.batch.Update(ref, doc)
	r.record(eventbus.EventTypeDocumentUpdated, ref.ID())
	return nil
}

// Delete queues the deletion of entity's document
func (r *BatchRepository) Delete(entity metadata.Entity) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := checkEntity(r.base.meta, entity); err != nil {
		return err
	}
	if entity.GetID() == "" {
		return errors.NewInvalidInputError("entity has no id").WithDetail("collection", r.base.path)
	}
	r.batch.batch.Delete(r.base.col.Doc(entity.GetID()))
	r.record(eventbus.EventTypeDocumentDeleted, entity.GetID())
	return nil
}

// Commit commits the underlying batch, including writes queued through other
// repositories of the same batch
func (r *BatchRepository) Commit(ctx context.Context) error {
	return r.batch.Commit(ctx)
}

func (r *BatchRepository) check() error {
	if r.batch.committed {
		return store.InvalidTransaction("batch already committed")
	}
	return nil
}

func (r *BatchRepository) record(kind, id string) {
	r.batch.events = append(r.batch.events, r.base.event(kind, id))
}
