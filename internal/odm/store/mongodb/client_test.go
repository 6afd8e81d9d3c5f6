package mongodb

import (
	"context"
	"testing"
	"time"

	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

// directRunner runs the callback without a session; mock deployments have
// no transaction support.
type directRunner struct {
	calls int
}

func (r *directRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	return fn(ctx)
}

func newTestClient(mt *mtest.T) (*Client, *directRunner) {
	runner := &directRunner{}
	return New(NewMongoCollectionAdapter(mt.Coll), runner, nil), runner
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func record(path, parent, id string, data bson.D, version int64) bson.D {
	return bson.D{
		{Key: "_id", Value: path},
		{Key: "parent", Value: parent},
		{Key: "document_id", Value: id},
		{Key: "data", Value: data},
		{Key: "version", Value: version},
		{Key: "create_time", Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Key: "update_time", Value: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
}

func TestDocumentRef_Get(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			record("bands/b1", "bands", "b1", bson.D{{Key: "name", Value: "Queen"}}, 3)))

		snap, err := client.Collection("bands").Doc("b1").Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "b1", snap.ID)
		assert.Equal(t, "bands/b1", snap.Path)
		assert.Equal(t, "Queen", snap.Data["name"])
		assert.Equal(t, int64(3), snap.Version)
		assert.Equal(t, 2024, snap.CreateTime.Year())
	})

	mt.Run("missing", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		_, err := client.Collection("bands").Doc("nope").Get(context.Background())
		assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
	})

	mt.Run("server error", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 1, Message: "find error"}))

		_, err := client.Collection("bands").Doc("b1").Get(context.Background())
		require.Error(t, err)
		assert.False(t, errors.IsNotFound(err))
	})
}

func TestDocumentRef_Writes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := client.Collection("bands").Doc("b1").Create(context.Background(), store.Document{"name": "Queen"})
		assert.NoError(t, err)
	})

	mt.Run("create duplicate", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key error"}))

		err := client.Collection("bands").Doc("b1").Create(context.Background(), store.Document{"name": "Queen"})
		assert.ErrorIs(t, err, errors.ErrDocumentExists)
	})

	mt.Run("set upserts", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		err := client.Collection("bands").Doc("b1").Set(context.Background(), store.Document{"name": "Queen"})
		assert.NoError(t, err)
	})

	mt.Run("update missing", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := client.Collection("bands").Doc("b1").Update(context.Background(), store.Document{"name": "x"})
		assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
	})

	mt.Run("update", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		err := client.Collection("bands").Doc("b1").Update(context.Background(), store.Document{"label.name": "EMI"})
		assert.NoError(t, err)
	})

	mt.Run("delete", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		assert.NoError(t, client.Collection("bands").Doc("b1").Delete(context.Background()))
	})
}

func TestCollectionRef_Query(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes results", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			record("bands/b1/albums/a1", "bands/b1/albums", "a1", bson.D{{Key: "title", Value: "One"}}, 1),
			record("bands/b1/albums/a2", "bands/b1/albums", "a2", bson.D{{Key: "title", Value: "Two"}}, 1),
		))

		q := store.Query{Limit: 10}.Where("title", store.OpNotEqual, "")
		snaps, err := client.Collection("bands/b1/albums").Query(context.Background(), q)
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.Equal(t, "a1", snaps[0].ID)
		assert.Equal(t, "Two", snaps[1].Data["title"])
	})

	mt.Run("find error", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad query"}))

		_, err := client.Collection("bands").Query(context.Background(), store.Query{})
		assert.Error(t, err)
	})
}

func TestRunTransaction(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("applies queued writes", func(mt *mtest.T) {
		client, runner := newTestClient(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
				record("counters/c", "counters", "c", bson.D{{Key: "n", Value: int32(1)}}, 1)),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		col := client.Collection("counters")
		err := client.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
			snap, err := tx.Get(col.Doc("c"))
			if err != nil {
				return err
			}
			return tx.Update(col.Doc("c"), store.Document{"n": snap.Data["n"].(int32) + 1})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, runner.calls)
	})

	mt.Run("executor error skips writes", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		boom := errors.NewInternalError("boom")

		err := client.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
			require.NoError(t, tx.Set(client.Collection("bands").Doc("b1"), store.Document{"name": "x"}))
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})

	mt.Run("reads after writes", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		col := client.Collection("bands")

		err := client.RunTransaction(context.Background(), func(ctx context.Context, tx store.Transaction) error {
			require.NoError(t, tx.Delete(col.Doc("b1")))
			_, err := tx.Get(col.Doc("b1"))
			return err
		})
		assert.ErrorIs(t, err, errors.ErrInvalidTransaction)
	})
}

func TestBatch_Commit(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("commits once", func(mt *mtest.T) {
		client, runner := newTestClient(mt)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		col := client.Collection("bands")
		batch := client.Batch()
		batch.Create(col.Doc("b1"), store.Document{"name": "one"})
		batch.Delete(col.Doc("b2"))
		assert.Equal(t, 2, batch.Len())

		require.NoError(t, batch.Commit(context.Background()))
		assert.Equal(t, 1, runner.calls)
		assert.ErrorIs(t, batch.Commit(context.Background()), errors.ErrInvalidTransaction)
	})

	mt.Run("stops at first failing write", func(mt *mtest.T) {
		client, _ := newTestClient(mt)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key error"}))

		col := client.Collection("bands")
		batch := client.Batch()
		batch.Create(col.Doc("b1"), store.Document{"name": "one"})
		batch.Create(col.Doc("b2"), store.Document{"name": "two"})

		assert.ErrorIs(t, batch.Commit(context.Background()), errors.ErrDocumentExists)
	})

	mt.Run("empty batch", func(mt *mtest.T) {
		client, runner := newTestClient(mt)
		assert.NoError(t, client.Batch().Commit(context.Background()))
		assert.Equal(t, 0, runner.calls)
	})
}
