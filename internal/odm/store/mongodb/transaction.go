package mongodb

import (
	"context"

	"firestore-odm/internal/odm/store"
)

// transaction reads through the session context and queues writes until the
// executor returns
type transaction struct {
	ctx    context.Context
	client *Client
	writes []store.Write
}

func (t *transaction) Get(ref store.DocumentRef) (*store.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, store.InvalidTransaction("transaction reads must precede writes")
	}
	return t.client.get(t.ctx, ref.Path())
}

func (t *transaction) Query(col store.CollectionRef, q store.Query) ([]*store.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, store.InvalidTransaction("transaction reads must precede writes")
	}
	return t.client.query(t.ctx, col.Path(), q)
}

func (t *transaction) Create(ref store.DocumentRef, data store.Document) error {
	t.writes = append(t.writes, store.Write{Kind: store.WriteCreate, Path: ref.Path(), Data: data})
	return nil
}

func (t *transaction) Set(ref store.DocumentRef, data store.Document) error {
	t.writes = append(t.writes, store.Write{Kind: store.WriteSet, Path: ref.Path(), Data: data})
	return nil
}

func (t *transaction) Update(ref store.DocumentRef, data store.Document) error {
	t.writes = append(t.writes, store.Write{Kind: store.WriteUpdate, Path: ref.Path(), Data: data})
	return nil
}

func (t *transaction) Delete(ref store.DocumentRef) error {
	t.writes = append(t.writes, store.Write{Kind: store.WriteDelete, Path: ref.Path()})
	return nil
}

type writeBatch struct {
	client    *Client
	writes    []store.Write
	committed bool
}

func (b *writeBatch) Create(ref store.DocumentRef, data store.Document) {
	b.writes = append(b.writes, store.Write{Kind: store.WriteCreate, Path: ref.Path(), Data: data})
}

func (b *writeBatch) Set(ref store.DocumentRef, data store.Document) {
	b.writes = append(b.writes, store.Write{Kind: store.WriteSet, Path: ref.Path(), Data: data})
}

func (b *writeBatch) Update(ref store.DocumentRef, data store.Document) {
	b.writes = append(b.writes, store.Write{Kind: store.WriteUpdate, Path: ref.Path(), Data: data})
}

func (b *writeBatch) Delete(ref store.DocumentRef) {
	b.writes = append(b.writes, store.Write{Kind: store.WriteDelete, Path: ref.Path()})
}

func (b *writeBatch) Len() int {
	return len(b.writes)
}

// Commit applies the queued writes inside one MongoDB transaction
func (b *writeBatch) Commit(ctx context.Context) error {
	if b.committed {
		return store.InvalidTransaction("batch already committed")
	}
	if len(b.writes) == 0 {
		b.committed = true
		return nil
	}

	err := b.client.runner.WithTransaction(ctx, func(sc context.Context) error {
		return b.client.applyWrites(sc, b.writes)
	})
	if err != nil {
		return err
	}
	b.committed = true
	return nil
}
