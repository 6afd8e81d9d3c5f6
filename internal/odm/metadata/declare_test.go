package metadata

import (
	"testing"

	"firestore-odm/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type band struct {
	ID     string
	Name   string
	Albums Repository
}

func (b *band) GetID() string   { return b.ID }
func (b *band) SetID(id string) { b.ID = id }

type album struct {
	ID     string
	Name   string
	Tracks Repository
}

func (a *album) GetID() string   { return a.ID }
func (a *album) SetID(id string) { a.ID = id }

type track struct {
	ID    string
	Title string
}

func (t *track) GetID() string   { return t.ID }
func (t *track) SetID(id string) { t.ID = id }

func TestDeclareCollection_DefaultName(t *testing.T) {
	bandType := NewEntityType[band]("Band")
	storage := NewMetadataStorage(DefaultConfig(), nil)

	require.NoError(t, storage.DeclareCollection(bandType, ""))

	full, err := storage.GetCollection(bandType, "Bands")
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, []string{"Bands"}, full.Segments)
	assert.Equal(t, "Bands", DefaultCollectionName(bandType))
}

func TestDeclareCollection_SubCollectionTree(t *testing.T) {
	bandType := NewEntityType[band]("Band")
	albumType := NewEntityType[album]("Album")
	trackType := NewEntityType[track]("Track")
	storage := NewMetadataStorage(DefaultConfig(), nil)

	err := storage.DeclareCollection(bandType, "bands", SubCollection{
		Entity:      albumType,
		PropertyKey: "Albums",
		Name:        "albums",
		SubCollections: []SubCollection{
			{Entity: trackType, PropertyKey: "Tracks"},
		},
	})
	require.NoError(t, err)

	cols := storage.Collections()
	require.Len(t, cols, 3)
	assert.Equal(t, "albums", cols[0].Name)
	assert.Equal(t, "Tracks", cols[1].Name)
	assert.Equal(t, "bands", cols[2].Name)

	trackCol, err := storage.GetCollection(Path("bands/b1/albums/a1/Tracks"), "")
	require.NoError(t, err)
	require.NotNil(t, trackCol)
	assert.Same(t, trackType, trackCol.EntityType)
	assert.Equal(t, []string{"bands", "albums", "Tracks"}, trackCol.Segments)
	assert.Equal(t, "Tracks", trackCol.ParentProps.ParentPropertyKey)
	assert.Same(t, albumType, trackCol.ParentProps.ParentEntityType)

	bandCol, err := storage.GetCollection(bandType, "bands")
	require.NoError(t, err)
	require.Len(t, bandCol.SubCollections, 1)
	assert.Equal(t, "Albums", bandCol.SubCollections[0].ParentProps.ParentPropertyKey)
}

func TestDeclareCollection_Duplicate(t *testing.T) {
	bandType := NewEntityType[band]("Band")
	storage := NewMetadataStorage(DefaultConfig(), nil)

	require.NoError(t, storage.DeclareCollection(bandType, "bands"))
	err := storage.DeclareCollection(bandType, "bands")
	assert.ErrorIs(t, err, errors.ErrDuplicateCollection)
}

func TestDeclareRepository(t *testing.T) {
	bandType := NewEntityType[band]("Band")
	storage := NewMetadataStorage(DefaultConfig(), nil)

	require.NoError(t, storage.DeclareRepository(bandType, "", fakeFactory()))
	require.NoError(t, storage.DeclareRepository(bandType, "legacy", fakeFactory()))

	entityWide, err := storage.GetRepository(bandType, "")
	require.NoError(t, err)
	require.NotNil(t, entityWide)

	scoped, err := storage.GetRepository(bandType, "legacy")
	require.NoError(t, err)
	require.NotNil(t, scoped)
	assert.Equal(t, "legacy", scoped.CollectionName)

	built := scoped.Target.NewRepository(&fakeRepository{path: "legacy"})
	assert.Equal(t, "legacy", built.CollectionPath())
}

func TestNewEntityType(t *testing.T) {
	named := NewEntityType[band]("", WithRule("Name", "self.name != ''", "name is required"))
	assert.Equal(t, "band", named.Name())
	assert.Equal(t, "band", named.String())
	require.Len(t, named.Rules(), 1)
	assert.Equal(t, "self.name != ''", named.Rules()[0].Expression)

	instance := named.New()
	_, ok := instance.(*band)
	assert.True(t, ok)
	assert.Equal(t, "*metadata.band", named.GoType().String())

	other := NewEntityType[band]("")
	assert.NotSame(t, named, other)
}
