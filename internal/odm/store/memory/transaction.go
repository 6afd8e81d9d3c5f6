package memory

import (
	"context"

	"firestore-odm/internal/odm/store"
)

type transaction struct {
	ctx    context.Context
	client *Client
	reads  map[string]int64
	writes []store.Write
}

func newTransaction(ctx context.Context, c *Client) *transaction {
	return &transaction{ctx: ctx, client: c, reads: make(map[string]int64)}
}

func (t *transaction) Get(ref store.DocumentRef) (*store.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, store.InvalidTransaction("transaction reads must precede writes")
	}

	snap, version, err := t.client.get(ref.Path())
	if err != nil {
		// A missing document is still a read: a concurrent create must abort.
		t.reads[ref.Path()] = 0
		return nil, err
	}
	t.reads[ref.Path()] = version
	return snap, nil
}

func (t *transaction) Query(col store.CollectionRef, q store.Query) ([]*store.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, store.InvalidTransaction("transaction reads must precede writes")
	}

	snaps, err := col.Query(t.ctx, q)
	if err != nil {
		return nil, err
	}
	for _, s := range snaps {
		t.reads[s.Path] = s.Version
	}
	return snaps, nil
}

func (t *transaction) Create(ref store.DocumentRef, data store.Document) error {
	return t.queue(store.WriteCreate, ref, data)
}

func (t *transaction) Set(ref store.DocumentRef, data store.Document) error {
	return t.queue(store.WriteSet, ref, data)
}

func (t *transaction) Update(ref store.DocumentRef, data store.Document) error {
	return t.queue(store.WriteUpdate, ref, data)
}

func (t *transaction) Delete(ref store.DocumentRef) error {
	return t.queue(store.WriteDelete, ref, nil)
}

func (t *transaction) queue(kind store.WriteKind, ref store.DocumentRef, data store.Document) error {
	cloned, err := cloneData(data)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, store.Write{Kind: kind, Path: ref.Path(), Data: cloned})
	return nil
}

type writeBatch struct {
	client    *Client
	writes    []store.Write
	committed bool
	err       error
}

func (b *writeBatch) Create(ref store.DocumentRef, data store.Document) {
	b.queue(store.WriteCreate, ref, data)
}

func (b *writeBatch) Set(ref store.DocumentRef, data store.Document) {
	b.queue(store.WriteSet, ref, data)
}

func (b *writeBatch) Update(ref store.DocumentRef, data store.Document) {
	b.queue(store.WriteUpdate, ref, data)
}

func (b *writeBatch) Delete(ref store.DocumentRef) {
	b.queue(store.WriteDelete, ref, nil)
}

func (b *writeBatch) Len() int {
	return len(b.writes)
}

// Commit applies every queued write or none of them
func (b *writeBatch) Commit(ctx context.Context) error {
	if b.committed {
		return store.InvalidTransaction("batch already committed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.err != nil {
		return b.err
	}

	if err := b.client.apply(b.writes); err != nil {
		return err
	}
	b.committed = true
	return nil
}

func (b *writeBatch) queue(kind store.WriteKind, ref store.DocumentRef, data store.Document) {
	if b.committed {
		b.err = store.InvalidTransaction("batch already committed")
		return
	}
	cloned, err := cloneData(data)
	if err != nil && b.err == nil {
		b.err = err
	}
	b.writes = append(b.writes, store.Write{Kind: kind, Path: ref.Path(), Data: cloned})
}

// cloneData detaches queued data from the caller's map
func cloneData(data store.Document) (store.Document, error) {
	if data == nil {
		return nil, nil
	}
	return store.CloneDocument(data)
}
