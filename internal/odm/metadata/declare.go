package metadata

import (
	"github.com/gertd/go-pluralize"
)

var plurals = pluralize.NewClient()

// SubCollection declares a subcollection held by a field of the parent entity.
// Name defaults to PropertyKey.
type SubCollection struct {
	Entity         *EntityType
	PropertyKey    string
	Name           string
	SubCollections []SubCollection
}

func (s SubCollection) collectionName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.PropertyKey
}

// DefaultCollectionName returns the plural of the entity type name
func DefaultCollectionName(entity *EntityType) string {
	return plurals.Plural(entity.Name())
}

// DeclareCollection registers a top-level collection and its subcollection
// tree. Subcollections are registered depth-first before the collection
// itself, so their segments are completed by the final registration.
func (s *MetadataStorage) DeclareCollection(entity *EntityType, name string, subs ...SubCollection) error {
	if name == "" {
		name = DefaultCollectionName(entity)
	}

	if err := s.declareSubCollections(entity, name, subs); err != nil {
		return err
	}

	return s.SetCollection(CollectionMetadata{
		Name:       name,
		EntityType: entity,
	})
}

func (s *MetadataStorage) declareSubCollections(parent *EntityType, parentName string, subs []SubCollection) error {
	for _, sub := range subs {
		name := sub.collectionName()
		err := s.SetCollection(CollectionMetadata{
			Name:       name,
			EntityType: sub.Entity,
			ParentProps: &ParentProperties{
				ParentEntityType:     parent,
				ParentPropertyKey:    sub.PropertyKey,
				ParentCollectionName: parentName,
			},
		})
		if err != nil {
			return err
		}

		if err := s.declareSubCollections(sub.Entity, name, sub.SubCollections); err != nil {
			return err
		}
	}
	return nil
}

// DeclareRepository binds factory as the custom repository of entity. An
// empty collectionName binds every collection backed by entity.
func (s *MetadataStorage) DeclareRepository(entity *EntityType, collectionName string, factory RepositoryFactory) error {
	return s.SetRepository(RepositoryMetadata{
		Entity:         entity,
		Target:         factory,
		CollectionName: collectionName,
	})
}
