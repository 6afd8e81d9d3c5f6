package repository

import (
	"context"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/eventbus"
	"firestore-odm/internal/shared/firestore"
)

// TransactionReference records a subcollection field bound to a transaction
// repository
type TransactionReference struct {
	Entity            metadata.Entity
	Path              string
	ParentPropertyKey string
}

// TransactionReferenceStorage is the set of references recorded during one
// transaction attempt
type TransactionReferenceStorage struct {
	refs map[TransactionReference]struct{}
}

// NewTransactionReferenceStorage returns an empty set
func NewTransactionReferenceStorage() *TransactionReferenceStorage {
	return &TransactionReferenceStorage{refs: make(map[TransactionReference]struct{})}
}

// Add records ref; adding the same reference twice keeps one
func (s *TransactionReferenceStorage) Add(ref TransactionReference) {
	s.refs[ref] = struct{}{}
}

// Len returns the number of recorded references
func (s *TransactionReferenceStorage) Len() int {
	return len(s.refs)
}

// All returns the recorded references in no particular order
func (s *TransactionReferenceStorage) All() []TransactionReference {
	out := make([]TransactionReference, 0, len(s.refs))
	for ref := range s.refs {
		out = append(out, ref)
	}
	return out
}

// bind assigns a live repository to every recorded field. Every repository is
// resolved before the first assignment, so a failure leaves all fields as
// they were.
func (s *TransactionReferenceStorage) bind(m *Manager) error {
	setters := make([]func(), 0, len(s.refs))
	for ref := range s.refs {
		repo, err := m.GetRepository(metadata.Path(ref.Path), "")
		if err != nil {
			return err
		}

		name, _ := firestore.GetLastSegment(ref.Path)
		set, err := assignRepository(ref.Entity, name, ref.ParentPropertyKey, repo)
		if err != nil {
			return err
		}
		setters = append(setters, set)
	}

	for _, set := range setters {
		set()
	}
	return nil
}

// Transaction is the handle passed to Manager.RunTransaction
type Transaction struct {
	manager *Manager
	client  store.Client
	tx      store.Transaction
	refs    *TransactionReferenceStorage
	events  []eventbus.Event
}

func newTransaction(m *Manager, client store.Client, tx store.Transaction) *Transaction {
	return &Transaction{
		manager: m,
		client:  client,
		tx:      tx,
		refs:    NewTransactionReferenceStorage(),
	}
}

// References returns the set of subcollection fields bound during this attempt
func (t *Transaction) References() *TransactionReferenceStorage {
	return t.refs
}

// GetRepository resolves a transaction repository. Custom bindings do not
// apply inside transactions.
func (t *Transaction) GetRepository(ref metadata.EntityOrPath, collectionName string) (*TransactionRepository, error) {
	res, err := t.manager.locate(ref, collectionName)
	if err != nil {
		return nil, err
	}
	return t.repository(newBaseRepository(t.manager, t.client, res.meta, res.path)), nil
}

func (t *Transaction) repository(base *BaseRepository) *TransactionRepository {
	return &TransactionRepository{base: base, tx: t}
}

// TransactionRepository performs reads and queues writes through a
// transaction. It is only valid while the transaction function runs.
type TransactionRepository struct {
	base *BaseRepository
	tx   *Transaction
}

func (r *TransactionRepository) CollectionPath() string {
	return r.base.path
}

func (r *TransactionRepository) Metadata() *metadata.FullCollectionMetadata {
	return r.base.meta
}

// Create queues a create. Subcollection fields are bound to transaction repositories.
func (r *TransactionRepository) Create(ctx context.Context, entity metadata.Entity) (metadata.Entity, error) {
	doc, ref, err := r.base.prepareWrite(entity, true)
	if err != nil {
		return nil, err
	}
	if err := r.tx.tx.Create(ref, doc); err != nil {
		return nil, err
	}
	if err := r.base.initializeSubCollections(entity, r.tx); err != nil {
		return nil, err
	}
	r.record(eventbus.EventTypeDocumentCreated, ref.ID())
	return entity, nil
}

// FindByID reads a document inside the transaction
func (r *TransactionRepository) FindByID(ctx context.Context, id string) (metadata.Entity, error) {
	if !firestore.IsValidID(id) {
		return nil, errors.NewInvalidInputError("invalid document id").WithDetail("id", id)
	}
	snap, err := r.tx.tx.Get(r.base.col.Doc(id))
	if err != nil {
		return nil, err
	}
	return r.base.entityFromSnapshot(snap, r.tx)
}

// Find runs q inside the transaction
func (r *TransactionRepository) Find(ctx context.Context, q store.Query) ([]metadata.Entity, error) {
	snaps, err := r.tx.tx.Query(r.base.col, q)
	if err != nil {
		return nil, err
	}
	return r.base.entitiesFromSnapshots(snaps, r.tx)
}

// FindOne returns the first match of q
func (r *TransactionRepository) FindOne(ctx context.Context, q store.Query) (metadata.Entity, error) {
	q.Limit = 1
	found, err := r.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, store.NotFound(r.base.path)
	}
	return found[0], nil
}

// Update queues an update of an existing document
func (r *TransactionRepository) Update(ctx context.Context, entity metadata.Entity) (metadata.Entity, error) {
	doc, ref, err := r.base.prepareWrite(entity, false)
	if err != nil {
		return nil, err
	}
	if err := r.tx.tx.Update(ref, doc); err != nil {
		return nil, err
	}
	r.record(eventbus.EventTypeDocumentUpdated, ref.ID())
	return entity, nil
}

// Delete queues a delete
func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	if !firestore.IsValidID(id) {
		return errors.NewInvalidInputError("invalid document id").WithDetail("id", id)
	}
	if err := r.tx.tx.Delete(r.base.col.Doc(id)); err != nil {
		return err
	}
	r.record(eventbus.EventTypeDocumentDeleted, id)
	return nil
}

func (r *TransactionRepository) record(kind, id string) {
	r.tx.events = append(r.tx.events, r.base.event(kind, id))
}
