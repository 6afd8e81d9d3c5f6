// Package memory is an in-process store.Client. Documents live in an ordered
// tree keyed by their full path, so the children of a collection are a
// contiguous key range.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/firestore"
	"firestore-odm/internal/shared/logger"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
)

// DefaultMaxAttempts bounds transaction retries on contention
const DefaultMaxAttempts = 5

type record struct {
	raw        []byte
	version    int64
	createTime time.Time
	updateTime time.Time
}

// Client implements store.Client
type Client struct {
	mu          sync.RWMutex
	docs        *btree.Map[string, record]
	seq         int64
	maxAttempts int
	now         func() time.Time
	logger      logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithMaxAttempts sets how many times a contended transaction is attempted
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithLogger sets the client logger
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates an empty in-memory store
func NewClient(opts ...Option) *Client {
	c := &Client{
		docs:        btree.NewMap[string, record](0),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		logger:      logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("memory_store")
	return c
}

// Collection returns a reference to the collection at path
func (c *Client) Collection(path string) store.CollectionRef {
	return &collectionRef{client: c, path: strings.Trim(path, "/")}
}

// Batch returns an empty write batch
func (c *Client) Batch() store.WriteBatch {
	return &writeBatch{client: c}
}

// Close is a no-op; the tree is released with the client
func (c *Client) Close(ctx context.Context) error {
	c.logger.Debug("Memory store closed")
	return nil
}

// Len returns the number of stored documents
func (c *Client) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs.Len()
}

// RunTransaction runs fn with optimistic concurrency. Every document read is
// recorded with its version; on commit the versions are checked under the
// write lock and the attempt is retried when any of them changed. An error
// returned by fn aborts without retrying.
func (c *Client) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Transaction) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := newTransaction(ctx, c)
		if err := fn(ctx, tx); err != nil {
			return err
		}

		err := c.commitTransaction(tx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errors.ErrTransactionAborted) {
			return err
		}

		lastErr = err
		c.logger.WithFields(map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": c.maxAttempts,
		}).Debug("Transaction contended, retrying")
	}
	return lastErr
}

func (c *Client) commitTransaction(tx *transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path, version := range tx.reads {
		current := int64(0)
		if rec, ok := c.docs.Get(path); ok {
			current = rec.version
		}
		if current != version {
			return store.Aborted("document " + path + " changed during transaction")
		}
	}
	return c.applyLocked(tx.writes)
}

// apply commits writes atomically
func (c *Client) apply(writes []store.Write) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(writes)
}

// applyLocked applies writes to a copy of the tree and swaps it in only when
// every write succeeded. Callers hold the write lock.
func (c *Client) applyLocked(writes []store.Write) error {
	if len(writes) == 0 {
		return nil
	}

	next := c.docs.Copy()
	seq := c.seq
	now := c.now()

	for _, w := range writes {
		existing, exists := next.Get(w.Path)

		switch w.Kind {
		case store.WriteDelete:
			next.Delete(w.Path)
			continue

		case store.WriteCreate:
			if exists {
				return store.AlreadyExists(w.Path)
			}

		case store.WriteUpdate:
			if !exists {
				return store.NotFound(w.Path)
			}
			current, err := store.DecodeDocument(existing.raw)
			if err != nil {
				return errors.NewInternalError("failed to decode stored document").WithCause(err)
			}
			w.Data = store.MergeUpdate(current, w.Data)

		case store.WriteSet:
		default:
			return errors.NewInternalError("unknown write kind").WithDetail("kind", string(w.Kind))
		}

		raw, err := store.EncodeDocument(w.Data)
		if err != nil {
			return errors.NewValidationError("document cannot be encoded").
				WithCause(err).
				WithDetail("path", w.Path)
		}

		seq++
		rec := record{raw: raw, version: seq, createTime: now, updateTime: now}
		if exists {
			rec.createTime = existing.createTime
		}
		next.Set(w.Path, rec)
	}

	c.docs = next
	c.seq = seq
	return nil
}

func (c *Client) get(path string) (*store.Snapshot, int64, error) {
	c.mu.RLock()
	rec, ok := c.docs.Get(path)
	c.mu.RUnlock()

	if !ok {
		return nil, 0, store.NotFound(path)
	}
	snap, err := toSnapshot(path, rec)
	if err != nil {
		return nil, 0, err
	}
	return snap, rec.version, nil
}

// children returns the documents directly inside the collection at path
func (c *Client) children(path string) ([]*store.Snapshot, error) {
	prefix := path + "/"

	c.mu.RLock()
	var paths []string
	var recs []record
	c.docs.Ascend(prefix, func(key string, rec record) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		if !strings.Contains(key[len(prefix):], "/") {
			paths = append(paths, key)
			recs = append(recs, rec)
		}
		return true
	})
	c.mu.RUnlock()

	out := make([]*store.Snapshot, 0, len(recs))
	for i, rec := range recs {
		snap, err := toSnapshot(paths[i], rec)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func toSnapshot(path string, rec record) (*store.Snapshot, error) {
	_, id := firestore.SplitDocumentPath(path)
	data, err := store.DecodeDocument(rec.raw)
	if err != nil {
		return nil, errors.NewInternalError("failed to decode stored document").
			WithCause(err).
			WithDetail("path", path)
	}
	return &store.Snapshot{
		ID:         id,
		Path:       path,
		Data:       data,
		Version:    rec.version,
		CreateTime: rec.createTime,
		UpdateTime: rec.updateTime,
	}, nil
}

type collectionRef struct {
	client *Client
	path   string
}

func (r *collectionRef) Path() string {
	return r.path
}

func (r *collectionRef) Doc(id string) store.DocumentRef {
	if id == "" {
		id = uuid.NewString()
	}
	return &documentRef{client: r.client, id: id, path: r.path + "/" + id}
}

func (r *collectionRef) Query(ctx context.Context, q store.Query) ([]*store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snaps, err := r.client.children(r.path)
	if err != nil {
		return nil, err
	}
	return store.Apply(snaps, q), nil
}

type documentRef struct {
	client *Client
	id     string
	path   string
}

func (r *documentRef) ID() string {
	return r.id
}

func (r *documentRef) Path() string {
	return r.path
}

func (r *documentRef) Get(ctx context.Context) (*store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, _, err := r.client.get(r.path)
	return snap, err
}

func (r *documentRef) Create(ctx context.Context, data store.Document) error {
	return r.write(ctx, store.WriteCreate, data)
}

func (r *documentRef) Set(ctx context.Context, data store.Document) error {
	return r.write(ctx, store.WriteSet, data)
}

func (r *documentRef) Update(ctx context.Context, data store.Document) error {
	return r.write(ctx, store.WriteUpdate, data)
}

func (r *documentRef) Delete(ctx context.Context) error {
	return r.write(ctx, store.WriteDelete, nil)
}

func (r *documentRef) write(ctx context.Context, kind store.WriteKind, data store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.client.apply([]store.Write{{Kind: kind, Path: r.path, Data: data}})
}
