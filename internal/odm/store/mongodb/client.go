// Package mongodb stores documents of every collection in one MongoDB
// collection keyed by document path. Each record keeps its parent collection
// path so the documents of a collection are selected with an indexed
// equality match.
package mongodb

import (
	"context"
	"strings"
	"time"

	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/firestore"
	"firestore-odm/internal/shared/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	fieldID         = "_id"
	fieldParent     = "parent"
	fieldDocumentID = "document_id"
	fieldData       = "data"
	fieldVersion    = "version"
	fieldCreateTime = "create_time"
	fieldUpdateTime = "update_time"
)

// DefaultCollection is the MongoDB collection holding every document
const DefaultCollection = "documents"

type documentRecord struct {
	Path       string    `bson:"_id"`
	Parent     string    `bson:"parent"`
	DocumentID string    `bson:"document_id"`
	Data       bson.Raw  `bson:"data"`
	Version    int64     `bson:"version"`
	CreateTime time.Time `bson:"create_time"`
	UpdateTime time.Time `bson:"update_time"`
}

// Config locates the documents collection
type Config struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// Client implements store.Client on MongoDB
type Client struct {
	docs   CollectionInterface
	runner SessionRunner
	mongo  *mongo.Client
	now    func() time.Time
	logger logger.Logger
}

// New builds a client over an existing collection and session runner
func New(docs CollectionInterface, runner SessionRunner, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Client{
		docs:   docs,
		runner: runner,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.WithComponent("mongodb_store"),
	}
}

// NewFromDatabase builds a client over collection of db
func NewFromDatabase(db *mongo.Database, collection string, log logger.Logger) *Client {
	if collection == "" {
		collection = DefaultCollection
	}
	return New(
		NewMongoCollectionAdapter(db.Collection(collection)),
		NewMongoSessionRunner(db.Client()),
		log,
	)
}

// Connect dials MongoDB, ensures the parent index and returns a client that
// owns the connection.
func Connect(ctx context.Context, cfg Config, log logger.Logger) (*Client, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.NewInfrastructureError("failed to connect to MongoDB").WithCause(err)
	}
	if err := mc.Ping(ctx, nil); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, errors.NewInfrastructureError("failed to ping MongoDB").WithCause(err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	db := mc.Database(cfg.Database)

	_, err = db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: fieldParent, Value: 1}},
		Options: options.Index().SetName("parent_1"),
	})
	if err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, errors.NewInfrastructureError("failed to create documents index").WithCause(err)
	}

	c := NewFromDatabase(db, collection, log)
	c.mongo = mc
	c.logger.WithFields(map[string]interface{}{
		"database":   cfg.Database,
		"collection": collection,
	}).Info("Connected to MongoDB")
	return c, nil
}

// Collection returns a reference to the collection at path
func (c *Client) Collection(path string) store.CollectionRef {
	return &collectionRef{client: c, path: strings.Trim(path, "/")}
}

// Batch returns an empty write batch
func (c *Client) Batch() store.WriteBatch {
	return &writeBatch{client: c}
}

// Close disconnects when the client owns the connection
func (c *Client) Close(ctx context.Context) error {
	if c.mongo == nil {
		return nil
	}
	return c.mongo.Disconnect(ctx)
}

// Ping checks the connection when the client owns one
func (c *Client) Ping(ctx context.Context) error {
	if c.mongo == nil {
		return nil
	}
	return c.mongo.Ping(ctx, nil)
}

// RunTransaction runs fn inside a MongoDB multi-document transaction. Writes
// queued by fn are applied in order before the commit.
func (c *Client) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Transaction) error) error {
	attempt := 0
	err := c.runner.WithTransaction(ctx, func(sc context.Context) error {
		attempt++
		tx := &transaction{ctx: sc, client: c}
		if err := fn(sc, tx); err != nil {
			return err
		}
		return c.applyWrites(sc, tx.writes)
	})
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"attempts": attempt,
			"error":    err,
		}).Debug("Transaction failed")
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*store.Snapshot, error) {
	var rec documentRecord
	if err := c.docs.FindOne(ctx, bson.M{fieldID: path}).Decode(&rec); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, store.NotFound(path)
		}
		return nil, errors.NewInfrastructureError("failed to read document").
			WithCause(err).
			WithDetail("path", path)
	}
	return toSnapshot(&rec)
}

func (c *Client) query(ctx context.Context, path string, q store.Query) ([]*store.Snapshot, error) {
	cur, err := c.docs.Find(ctx, buildFilter(path, q.Filters), buildFindOptions(q))
	if err != nil {
		return nil, errors.NewInfrastructureError("failed to query collection").
			WithCause(err).
			WithDetail("collection", path)
	}
	defer cur.Close(ctx)

	out := make([]*store.Snapshot, 0)
	for cur.Next(ctx) {
		var rec documentRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, errors.NewInternalError("failed to decode document").WithCause(err)
		}
		snap, err := toSnapshot(&rec)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.NewInfrastructureError("cursor failed").WithCause(err)
	}
	return out, nil
}

func (c *Client) applyWrites(ctx context.Context, writes []store.Write) error {
	for i, w := range writes {
		if err := c.applyWrite(ctx, w); err != nil {
			c.logger.WithFields(map[string]interface{}{
				"index": i,
				"kind":  string(w.Kind),
				"path":  w.Path,
				"error": err,
			}).Debug("Write failed")
			return err
		}
	}
	return nil
}

func (c *Client) applyWrite(ctx context.Context, w store.Write) error {
	now := c.now()
	parent, id := firestore.SplitDocumentPath(w.Path)

	switch w.Kind {
	case store.WriteCreate:
		raw, err := encode(w)
		if err != nil {
			return err
		}
		_, err = c.docs.InsertOne(ctx, documentRecord{
			Path:       w.Path,
			Parent:     parent,
			DocumentID: id,
			Data:       raw,
			Version:    1,
			CreateTime: now,
			UpdateTime: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return store.AlreadyExists(w.Path)
		}
		if err != nil {
			return errors.NewInfrastructureError("failed to create document").WithCause(err).WithDetail("path", w.Path)
		}
		return nil

	case store.WriteSet:
		raw, err := encode(w)
		if err != nil {
			return err
		}
		update := bson.M{
			"$set": bson.M{
				fieldParent:     parent,
				fieldDocumentID: id,
				fieldData:       raw,
				fieldUpdateTime: now,
			},
			"$setOnInsert": bson.M{fieldCreateTime: now},
			"$inc":         bson.M{fieldVersion: 1},
		}
		_, err = c.docs.UpdateOne(ctx, bson.M{fieldID: w.Path}, update, options.Update().SetUpsert(true))
		if err != nil {
			return errors.NewInfrastructureError("failed to set document").WithCause(err).WithDetail("path", w.Path)
		}
		return nil

	case store.WriteUpdate:
		set := updateDocument(w.Data)
		set[fieldUpdateTime] = now
		res, err := c.docs.UpdateOne(ctx, bson.M{fieldID: w.Path}, bson.M{
			"$set": set,
			"$inc": bson.M{fieldVersion: 1},
		})
		if err != nil {
			return errors.NewInfrastructureError("failed to update document").WithCause(err).WithDetail("path", w.Path)
		}
		if res.Matched() == 0 {
			return store.NotFound(w.Path)
		}
		return nil

	case store.WriteDelete:
		if _, err := c.docs.DeleteOne(ctx, bson.M{fieldID: w.Path}); err != nil {
			return errors.NewInfrastructureError("failed to delete document").WithCause(err).WithDetail("path", w.Path)
		}
		return nil

	default:
		return errors.NewInternalError("unknown write kind").WithDetail("kind", string(w.Kind))
	}
}

func encode(w store.Write) (bson.Raw, error) {
	raw, err := store.EncodeDocument(w.Data)
	if err != nil {
		return nil, errors.NewValidationError("document cannot be encoded").
			WithCause(err).
			WithDetail("path", w.Path)
	}
	return raw, nil
}

func toSnapshot(rec *documentRecord) (*store.Snapshot, error) {
	data := store.Document{}
	if len(rec.Data) > 0 {
		decoded, err := store.DecodeDocument(rec.Data)
		if err != nil {
			return nil, errors.NewInternalError("failed to decode document").
				WithCause(err).
				WithDetail("path", rec.Path)
		}
		data = decoded
	}

	id := rec.DocumentID
	if id == "" {
		_, id = firestore.SplitDocumentPath(rec.Path)
	}
	return &store.Snapshot{
		ID:         id,
		Path:       rec.Path,
		Data:       data,
		Version:    rec.Version,
		CreateTime: rec.CreateTime,
		UpdateTime: rec.UpdateTime,
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
	return r.client.query(ctx, r.path, q)
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
	return r.client.get(ctx, r.path)
}

func (r *documentRef) Create(ctx context.Context, data store.Document) error {
	return r.client.applyWrite(ctx, store.Write{Kind: store.WriteCreate, Path: r.path, Data: data})
}

func (r *documentRef) Set(ctx context.Context, data store.Document) error {
	return r.client.applyWrite(ctx, store.Write{Kind: store.WriteSet, Path: r.path, Data: data})
}

func (r *documentRef) Update(ctx context.Context, data store.Document) error {
	return r.client.applyWrite(ctx, store.Write{Kind: store.WriteUpdate, Path: r.path, Data: data})
}

func (r *documentRef) Delete(ctx context.Context) error {
	return r.client.applyWrite(ctx, store.Write{Kind: store.WriteDelete, Path: r.path})
}
