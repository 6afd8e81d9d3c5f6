package main

import (
	"context"
	"time"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/repository"
	"firestore-odm/internal/odm/store"
)

// Band is the sample top-level model registered at startup
type Band struct {
	ID            string                `bson:"-"`
	Name          string                `bson:"name"`
	FormationYear int                   `bson:"formationYear"`
	Genres        []string              `bson:"genres"`
	Albums        repository.Repository `bson:"-"`
}

func (b *Band) GetID() string   { return b.ID }
func (b *Band) SetID(id string) { b.ID = id }

// Album lives in the albums subcollection of a band
type Album struct {
	ID          string    `bson:"-"`
	Name        string    `bson:"name"`
	ReleaseDate time.Time `bson:"releaseDate"`
}

func (a *Album) GetID() string   { return a.ID }
func (a *Album) SetID(id string) { a.ID = id }

// BandRepository adds genre lookups to the bands collection
type BandRepository struct {
	*repository.BaseRepository
}

func (r *BandRepository) FindByGenre(ctx context.Context, genre string) ([]metadata.Entity, error) {
	return r.Find(ctx, store.Query{}.Where("genres", store.OpArrayContains, genre))
}

var (
	bandType = metadata.NewEntityType[Band]("Band",
		metadata.WithRule("name", "self.name != ''", "a band needs a name"),
	)
	albumType = metadata.NewEntityType[Album]("Album",
		metadata.WithRule("name", "self.name != ''", "an album needs a name"),
	)
)

// declareModels registers the sample collections and the bands repository
func declareModels(storage *metadata.MetadataStorage) error {
	err := storage.DeclareCollection(bandType, "bands", metadata.SubCollection{
		Entity:      albumType,
		PropertyKey: "Albums",
		Name:        "albums",
	})
	if err != nil {
		return err
	}

	return storage.DeclareRepository(bandType, "bands", repository.NewFactory(
		func(base *repository.BaseRepository) *BandRepository {
			return &BandRepository{BaseRepository: base}
		},
	))
}
