package repository

import (
	"context"
	"testing"
	"time"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_CommitsAcrossCollections(t *testing.T) {
	bus := eventbus.NewEventBus(nil)
	var commits []eventbus.CommitEvent
	bus.Subscribe(eventbus.EventTypeBatchCommitted, func(ctx context.Context, e eventbus.Event) error {
		commits = append(commits, e.(eventbus.CommitEvent))
		return nil
	})

	f := newFixture(t, metadata.DefaultConfig(), WithEventBus(bus))
	ctx := context.Background()

	batch, err := f.manager.CreateBatch()
	require.NoError(t, err)

	bands, err := batch.GetRepository(f.band, "bands")
	require.NoError(t, err)
	albums, err := batch.GetRepository(metadata.Path("bands/rush/albums"), "")
	require.NoError(t, err)
	assert.Equal(t, "bands/rush/albums", albums.CollectionPath())

	require.NoError(t, bands.Create(&Band{ID: "rush", Name: "Rush"}))
	require.NoError(t, albums.Create(&Album{ID: "2112", Name: "2112"}))
	generated := &Album{Name: "Signals"}
	require.NoError(t, albums.Create(generated))
	assert.NotEmpty(t, generated.ID)
	assert.Equal(t, 3, batch.Len())
	assert.Equal(t, 0, f.client.Len())

	require.NoError(t, bands.Commit(ctx))
	assert.Equal(t, 3, f.client.Len())
	require.Len(t, commits, 1)
	assert.Equal(t, 3, commits[0].Writes)

	rush, err := f.bands(t).FindByID(ctx, "rush")
	require.NoError(t, err)
	found, err := rush.(*Band).Albums.FindByID(ctx, generated.ID)
	require.NoError(t, err)
	assert.Equal(t, "Signals", found.(*Album).Name)
}

func TestBatch_FailedCommitWritesNothing(t *testing.T) {
	f := newFixture(t, metadata.DefaultConfig())
	f.seedBand(t, "queen", "Queen")

	batch, err := f.manager.CreateBatch()
	require.NoError(t, err)
	bands, err := batch.GetRepository(metadata.Path("bands"), "")
	require.NoError(t, err)

	require.NoError(t, bands.Create(&Band{ID: "abba", Name: "ABBA"}))
	require.NoError(t, bands.Create(&Band{ID: "queen", Name: "Queen again"}))

	assert.ErrorIs(t, batch.Commit(context.Background()), errors.ErrDocumentExists)
	assert.Equal(t, 1, f.client.Len())
}

func TestBatch_CommitOnce(t *testing.T) {
	f := newFixture(t, metadata.DefaultConfig())
	ctx := context.Background()

	batch, err := f.manager.CreateBatch()
	require.NoError(t, err)
	bands, err := batch.GetRepository(metadata.Path("bands"), "")
	require.NoError(t, err)
	require.NoError(t, bands.Create(&Band{ID: "abba", Name: "ABBA"}))

	require.NoError(t, batch.Commit(ctx))
	assert.ErrorIs(t, batch.Commit(ctx), errors.ErrInvalidTransaction)
	assert.ErrorIs(t, bands.Create(&Band{ID: "muse", Name: "Muse"}), errors.ErrInvalidTransaction)
}

func TestBatch_SetUpdateDelete(t *testing.T) {
	f := newFixture(t, metadata.DefaultConfig())
	ctx := context.Background()
	queen := f.seedBand(t, "queen", "Queen")
	abba := f.seedBand(t, "abba", "ABBA")

	repo := f.bands(t).CreateBatch()
	queen.FormationYear = 1971
	require.NoError(t, repo.Update(queen))
	require.NoError(t, repo.Set(&Band{ID: "muse", Name: "Muse"}))
	require.NoError(t, repo.Delete(abba))
	require.NoError(t, repo.Commit(ctx))

	found, err := f.bands(t).FindByID(ctx, "queen")
	require.NoError(t, err)
	assert.Equal(t, 1971, found.(*Band).FormationYear)

	_, err = f.bands(t).FindByID(ctx, "muse")
	assert.NoError(t, err)
	_, err = f.bands(t).FindByID(ctx, "abba")
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
}

func TestBatch_SubCollectionBatch(t *testing.T) {
	f := newFixture(t, metadata.DefaultConfig())
	ctx := context.Background()
	rush := f.seedBand(t, "rush", "Rush")

	batch := rush.Albums.(*BaseRepository).CreateBatch()
	require.NoError(t, batch.Create(&Album{ID: "2112", Name: "2112", ReleaseDate: date(1976, time.April, 1)}))
	require.NoError(t, batch.Create(&Album{ID: "moving-pictures", Name: "Moving Pictures"}))
	require.NoError(t, batch.Commit(ctx))

	albums, err := rush.Albums.Find(ctx, store.Query{})
	require.NoError(t, err)
	assert.Len(t, albums, 2)
}

func TestBatch_ValidatesWhenQueued(t *testing.T) {
	cfg := metadata.DefaultConfig()
	cfg.ValidateModels = true
	f := newFixture(t, cfg)

	repo := f.bands(t).CreateBatch()
	assert.ErrorIs(t, repo.Create(&Band{ID: "nameless"}), errors.ErrModelValidation)
	assert.ErrorIs(t, repo.Set(&Band{Name: "No id"}), errors.ErrInvalidInputValue)
	assert.ErrorIs(t, repo.Delete(&Band{}), errors.ErrInvalidInputValue)
	assert.ErrorIs(t, repo.Delete(&Album{ID: "x"}), errors.ErrInvalidInputValue)
}
