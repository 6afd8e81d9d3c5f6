package metadata

import (
	"slices"
	"sync"

	"firestore-odm/internal/shared/errors"
	"firestore-odm/internal/shared/firestore"
	"firestore-odm/internal/shared/logger"
)

// MetadataStorage is the registry of declared collections and custom
// repository bindings. Declarations may arrive in any order: a subcollection
// registered before its parent gets its segments fixed when the parent arrives.
type MetadataStorage struct {
	mu           sync.RWMutex
	collections  []*CollectionMetadataWithSegments
	repositories map[string]RepositoryMetadata
	config       Config
	logger       logger.Logger
}

// NewMetadataStorage creates an empty registry
func NewMetadataStorage(cfg Config, log logger.Logger) *MetadataStorage {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &MetadataStorage{
		repositories: make(map[string]RepositoryMetadata),
		config:       cfg,
		logger:       log.WithComponent("metadata_storage"),
	}
}

// Config returns the registry settings
func (s *MetadataStorage) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// SetCollection registers a collection and recomputes the segments of any
// descendants that were registered before it. The registry is left
// untouched when an error is returned.
func (s *MetadataStorage) SetCollection(col CollectionMetadata) error {
	if col.Name == "" || col.EntityType == nil {
		return errors.NewInvalidInputError("collection metadata requires a name and an entity type").
			WithDetail("collection", col.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.ThrowOnDuplicatedCollection {
		for _, existing := range s.collections {
			if !existing.isSame(col) {
				continue
			}
			if col.IsSubCollection() {
				return errors.NewDuplicateSubCollectionError(
					existing.EntityType.Name(), existing.Name, existing.ParentProps.ParentPropertyKey)
			}
			return errors.NewDuplicateCollectionError(existing.EntityType.Name(), existing.Name)
		}
	}

	added := &CollectionMetadataWithSegments{
		CollectionMetadata: col,
		Segments:           []string{col.Name},
	}
	if col.IsSubCollection() {
		if parent := s.findByEntity(col.ParentProps.ParentEntityType, col.ParentProps.ParentCollectionName); parent != nil {
			added.Segments = append(slices.Clone(parent.Segments), col.Name)
		}
	}
	s.collections = append(s.collections, added)

	s.logger.WithFields(map[string]interface{}{
		"entity":         col.EntityType.Name(),
		"collection":     col.Name,
		"sub_collection": col.IsSubCollection(),
	}).Debug("Collection registered")

	// Entries registered before their parent still hold [name]; walk every
	// known descendant and rebuild its segments from the parent chain.
	pending := s.childrenOf(col.EntityType, col.Name)
	visited := make(map[*CollectionMetadataWithSegments]bool)
	for len(pending) > 0 {
		child := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if visited[child] {
			continue
		}
		visited[child] = true

		parent := s.findByEntity(child.ParentProps.ParentEntityType, child.ParentProps.ParentCollectionName)
		if parent == nil {
			child.Segments = nil
		} else {
			child.Segments = append(slices.Clone(parent.Segments), child.Name)
		}

		s.logger.WithFields(map[string]interface{}{
			"collection": child.Name,
			"segments":   child.Segments,
		}).Debug("Subcollection segments updated")

		pending = append(pending, s.childrenOf(child.EntityType, child.Name)...)
	}

	return nil
}

// GetCollection resolves a collection by path or by entity type and name.
//
// Path mode validates parity, requires the terminal name (collectionName when
// given, otherwise the last segment) to be registered and then matches the
// collection-name positions of the path against registered segments.
// Entity mode needs both the entity type and the name. A miss returns nil
// without an error.
func (s *MetadataStorage) GetCollection(ref EntityOrPath, collectionName string) (*FullCollectionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *CollectionMetadataWithSegments

	switch r := ref.(type) {
	case Path:
		path := string(r)
		segments := firestore.SplitPath(path)
		name := collectionName
		if name == "" {
			name = segments[len(segments)-1]
		}

		if len(segments)%2 == 0 {
			return nil, errors.NewIncompleteOrInvalidPathError(path)
		}

		if !s.hasName(name) {
			return nil, errors.NewCollectionPathNotFoundError(path)
		}

		want, err := firestore.CollectionSegments(path)
		if err != nil {
			return nil, err
		}

		for _, c := range s.collections {
			if c.Name == name && slices.Equal(c.Segments, want) {
				match = c
				break
			}
		}

	case *EntityType:
		match = s.findByEntity(r, collectionName)

	default:
		return nil, errors.NewInvalidInputError("collection reference must be a Path or an *EntityType")
	}

	if match == nil {
		return nil, nil
	}

	full := &FullCollectionMetadata{
		CollectionMetadataWithSegments: match.clone(),
		SubCollections:                 make([]CollectionMetadataWithSegments, 0),
	}
	for _, sub := range s.childrenOf(match.EntityType, match.Name) {
		full.SubCollections = append(full.SubCollections, sub.clone())
	}
	return full, nil
}

// SetRepository binds a custom repository factory. Re-binding an existing
// key is a no-op that keeps the first factory, unless
// RejectDuplicatedRepository is set.
func (s *MetadataStorage) SetRepository(repo RepositoryMetadata) error {
	if fn, isFunc := repo.Target.(RepositoryFactoryFunc); repo.Target == nil || (isFunc && fn == nil) {
		return errors.NewCustomRepositoryInheritanceError(repo.Entity.Name())
	}

	idx := NewRepositoryIndex(repo.Entity.Name(), repo.CollectionName)
	if err := idx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := idx.String()
	if _, exists := s.repositories[key]; exists {
		if s.config.RejectDuplicatedRepository {
			return errors.NewDuplicateRepositoryError(key)
		}
		s.logger.WithFields(map[string]interface{}{"index": key}).Debug("Repository already bound, keeping existing binding")
		return nil
	}

	s.repositories[key] = repo
	s.logger.WithFields(map[string]interface{}{"index": key}).Debug("Repository registered")
	return nil
}

// GetRepository returns the binding for (entity, collectionName) or nil.
// An empty collectionName looks up the entity-wide binding.
func (s *MetadataStorage) GetRepository(entity *EntityType, collectionName string) (*RepositoryMetadata, error) {
	idx := NewRepositoryIndex(entity.Name(), collectionName)
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	repo, ok := s.repositories[idx.String()]
	if !ok {
		return nil, nil
	}
	return &repo, nil
}

// GetRepositories returns a snapshot of every binding keyed by its JSON index
func (s *MetadataStorage) GetRepositories() map[string]RepositoryMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]RepositoryMetadata, len(s.repositories))
	for k, v := range s.repositories {
		out[k] = v
	}
	return out
}

// Collections returns a snapshot of every entry in registration order
func (s *MetadataStorage) Collections() []CollectionMetadataWithSegments {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CollectionMetadataWithSegments, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c.clone())
	}
	return out
}

// childrenOf must be called with the lock held
func (s *MetadataStorage) childrenOf(entityType *EntityType, name string) []*CollectionMetadataWithSegments {
	var children []*CollectionMetadataWithSegments
	for _, c := range s.collections {
		if c.isChildOf(entityType, name) {
			children = append(children, c)
		}
	}
	return children
}

// findByEntity must be called with the lock held
func (s *MetadataStorage) findByEntity(entityType *EntityType, name string) *CollectionMetadataWithSegments {
	for _, c := range s.collections {
		if c.EntityType == entityType && c.Name == name {
			return c
		}
	}
	return nil
}

func (s *MetadataStorage) hasName(name string) bool {
	for _, c := range s.collections {
		if c.Name == name {
			return true
		}
	}
	return false
}

func invalidIndex(key string) error {
	return errors.NewInvalidRepositoryIndexError(key)
}
