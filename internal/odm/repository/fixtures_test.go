package repository

import (
	"context"
	"testing"
	"time"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/odm/store/memory"

	"github.com/stretchr/testify/require"
)

type Band struct {
	ID            string     `bson:"-"`
	Name          string     `bson:"name"`
	FormationYear int        `bson:"formationYear"`
	Genres        []string   `bson:"genres"`
	Albums        Repository `bson:"-"`
}

func (b *Band) GetID() string   { return b.ID }
func (b *Band) SetID(id string) { b.ID = id }

type Album struct {
	ID          string    `bson:"-"`
	Name        string    `bson:"name"`
	ReleaseDate time.Time `bson:"releaseDate"`
}

func (a *Album) GetID() string   { return a.ID }
func (a *Album) SetID(id string) { a.ID = id }

// BandRepository is a custom repository inheriting the base operations
type BandRepository struct {
	*BaseRepository
}

func (r *BandRepository) FindByGenre(ctx context.Context, genre string) ([]metadata.Entity, error) {
	return r.Find(ctx, store.Query{}.Where("genres", store.OpArrayContains, genre))
}

func bandRepositoryFactory() metadata.RepositoryFactory {
	return NewFactory(func(base *BaseRepository) *BandRepository {
		return &BandRepository{BaseRepository: base}
	})
}

type fixture struct {
	storage *metadata.MetadataStorage
	manager *Manager
	client  *memory.Client
	band    *metadata.EntityType
	album   *metadata.EntityType
}

func newFixture(t *testing.T, cfg metadata.Config, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		storage: metadata.NewMetadataStorage(cfg, nil),
		client:  memory.NewClient(),
		band:    metadata.NewEntityType[Band]("Band", metadata.WithRule("name", "self.name != ''", "name is required")),
		album:   metadata.NewEntityType[Album]("Album"),
	}
	require.NoError(t, f.storage.DeclareCollection(f.band, "bands", metadata.SubCollection{
		Entity:      f.album,
		PropertyKey: "Albums",
		Name:        "albums",
	}))

	m, err := NewManager(f.storage, opts...)
	require.NoError(t, err)
	m.Initialize(f.client)
	f.manager = m
	return f
}

func (f *fixture) bands(t *testing.T) *BaseRepository {
	t.Helper()
	repo, err := f.manager.GetBaseRepository(metadata.Path("bands"), "")
	require.NoError(t, err)
	return repo
}

func (f *fixture) seedBand(t *testing.T, id, name string, genres ...string) *Band {
	t.Helper()
	band := &Band{ID: id, Name: name, FormationYear: 1970, Genres: genres}
	_, err := f.bands(t).Create(context.Background(), band)
	require.NoError(t, err)
	return band
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
