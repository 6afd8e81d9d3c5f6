package repository

import (
	"testing"
	"time"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type label struct {
	Name    string `bson:"name"`
	Country string `bson:"country,omitempty"`
}

type artist struct {
	ID       string
	Name     string
	Label    label      `bson:"label"`
	Since    time.Time  `bson:"since"`
	Internal string     `bson:"-"`
	Records  Repository `bson:"records"`
	Tours    Repository
}

func (a *artist) GetID() string   { return a.ID }
func (a *artist) SetID(id string) { a.ID = id }

func artistMetadata() *metadata.FullCollectionMetadata {
	artistType := metadata.NewEntityType[artist]("Artist")
	sub := func(name, key string) metadata.CollectionMetadataWithSegments {
		return metadata.CollectionMetadataWithSegments{
			CollectionMetadata: metadata.CollectionMetadata{
				Name:       name,
				EntityType: artistType,
				ParentProps: &metadata.ParentProperties{
					ParentEntityType:     artistType,
					ParentPropertyKey:    key,
					ParentCollectionName: "artists",
				},
			},
			Segments: []string{"artists", name},
		}
	}

	return &metadata.FullCollectionMetadata{
		CollectionMetadataWithSegments: metadata.CollectionMetadataWithSegments{
			CollectionMetadata: metadata.CollectionMetadata{Name: "artists", EntityType: artistType},
			Segments:           []string{"artists"},
		},
		SubCollections: []metadata.CollectionMetadataWithSegments{
			sub("records", "records"),
			sub("tours", "tours"),
		},
	}
}

func TestSerializeEntity(t *testing.T) {
	meta := artistMetadata()
	since := time.Date(1970, time.June, 27, 0, 0, 0, 0, time.UTC)
	a := &artist{
		ID:       "queen",
		Name:     "Queen",
		Label:    label{Name: "EMI"},
		Since:    since,
		Internal: "secret",
		Records:  &BaseRepository{},
	}

	doc, err := serializeEntity(meta, a)
	require.NoError(t, err)

	assert.Equal(t, "Queen", doc["name"])
	assert.Equal(t, primitive.M{"name": "EMI"}, doc["label"])
	assert.NotContains(t, doc, "id")
	assert.NotContains(t, doc, "internal")
	assert.NotContains(t, doc, "records")
	assert.NotContains(t, doc, "tours")
	assert.Contains(t, doc, "since")

	// the entity itself is left untouched
	assert.NotNil(t, a.Records)
}

func TestMaterialize(t *testing.T) {
	meta := artistMetadata()
	snap := &store.Snapshot{
		ID:   "queen",
		Path: "artists/queen",
		Data: store.Document{
			"name":  "Queen",
			"label": map[string]interface{}{"name": "EMI", "country": "UK"},
			"since": time.Date(1970, time.June, 27, 0, 0, 0, 0, time.UTC),
		},
	}

	entity, err := materialize(meta, snap)
	require.NoError(t, err)
	a := entity.(*artist)
	assert.Equal(t, "queen", a.ID)
	assert.Equal(t, "Queen", a.Name)
	assert.Equal(t, label{Name: "EMI", Country: "UK"}, a.Label)
	assert.Equal(t, 1970, a.Since.Year())
	assert.Nil(t, a.Records)
}

func TestMaterialize_TypeMismatch(t *testing.T) {
	snap := &store.Snapshot{ID: "x", Path: "artists/x", Data: store.Document{"name": 42}}
	_, err := materialize(artistMetadata(), snap)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeInternal, err.(*errors.AppError).Type)
}

func TestSubCollectionField(t *testing.T) {
	a := &artist{}
	v := reflectValue(a)

	f, ok := subCollectionField(v, "Tours")
	require.True(t, ok)
	assert.Equal(t, "Tours", f.Name)

	f, ok = subCollectionField(v, "records")
	require.True(t, ok)
	assert.Equal(t, "Records", f.Name)

	f, ok = subCollectionField(v, "tours")
	require.True(t, ok)
	assert.Equal(t, "Tours", f.Name)

	_, ok = subCollectionField(v, "albums")
	assert.False(t, ok)
}

func TestAssignRepository(t *testing.T) {
	a := &artist{}
	repo := &BaseRepository{path: "artists/queen/tours"}

	set, err := assignRepository(a, "tours", "Tours", repo)
	require.NoError(t, err)
	assert.Nil(t, a.Tours)
	set()
	assert.Same(t, repo, a.Tours)

	_, err = assignRepository(a, "tours", "", repo)
	assert.ErrorIs(t, err, errors.ErrNoParentPropertyKey)

	_, err = assignRepository(a, "tours", "Missing", repo)
	assert.ErrorIs(t, err, errors.ErrNoParentPropertyKey)

	// Name is a string field and cannot hold a repository
	_, err = assignRepository(a, "names", "Name", repo)
	assert.ErrorIs(t, err, errors.ErrNoParentPropertyKey)
}

func TestBsonKey(t *testing.T) {
	typ := reflectValue(&artist{}).Type()

	name, _ := typ.FieldByName("Name")
	assert.Equal(t, "name", bsonKey(name))
	internal, _ := typ.FieldByName("Internal")
	assert.Equal(t, "", bsonKey(internal))
	records, _ := typ.FieldByName("Records")
	assert.Equal(t, "records", bsonKey(records))
}
