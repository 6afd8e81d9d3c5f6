package metadata

import (
	"encoding/json"
	"reflect"
)

// Entity is implemented by every document model. The id is the document id
// inside its collection and is never written into the document body.
type Entity interface {
	GetID() string
	SetID(id string)
}

// ValidationRule is a CEL expression evaluated against the serialized document
// bound to `self`, e.g. `self.name != ''`.
type ValidationRule struct {
	Field      string
	Expression string
	Message    string
}

// EntityType is the registration handle of a model type. Two handles are the
// same entity type only if they are the same pointer.
type EntityType struct {
	name   string
	goType reflect.Type
	newFn  func() Entity
	rules  []ValidationRule
}

// EntityTypeOption configures an EntityType
type EntityTypeOption func(*EntityType)

// WithRule attaches a validation rule to the entity type
func WithRule(field, expression, message string) EntityTypeOption {
	return func(e *EntityType) {
		e.rules = append(e.rules, ValidationRule{Field: field, Expression: expression, Message: message})
	}
}

// NewEntityType declares the model *T. When name is empty the Go type name is used.
func NewEntityType[T any, P interface {
	*T
	Entity
}](name string, opts ...EntityTypeOption) *EntityType {
	goType := reflect.TypeOf((*T)(nil))
	if name == "" {
		name = goType.Elem().Name()
	}

	et := &EntityType{
		name:   name,
		goType: goType,
		newFn:  func() Entity { return P(new(T)) },
	}
	for _, opt := range opts {
		opt(et)
	}
	return et
}

// Name returns the declared entity type name
func (e *EntityType) Name() string {
	if e == nil {
		return ""
	}
	return e.name
}

// New returns a zero value of the model as a pointer
func (e *EntityType) New() Entity {
	return e.newFn()
}

// GoType returns the pointer type the entity type materializes
func (e *EntityType) GoType() reflect.Type {
	return e.goType
}

// Rules returns a copy of the validation rules
func (e *EntityType) Rules() []ValidationRule {
	return append([]ValidationRule(nil), e.rules...)
}

func (e *EntityType) String() string {
	return e.Name()
}

func (e *EntityType) isEntityOrPath() {}

// EntityOrPath is either an *EntityType or a Path
type EntityOrPath interface {
	String() string
	isEntityOrPath()
}

// Path is an alternating collection/document path such as "bands/b1/albums"
type Path string

func (p Path) String() string {
	return string(p)
}

func (Path) isEntityOrPath() {}

// ParentProperties links a subcollection to the entity type that owns it.
// ParentPropertyKey names the field on the parent entity that receives the
// subcollection repository.
type ParentProperties struct {
	ParentEntityType     *EntityType
	ParentPropertyKey    string
	ParentCollectionName string
}

// CollectionMetadata is the declaration of one collection
type CollectionMetadata struct {
	Name        string
	EntityType  *EntityType
	ParentProps *ParentProperties
}

// IsSubCollection reports whether the entry carries complete parent properties
func (c CollectionMetadata) IsSubCollection() bool {
	p := c.ParentProps
	return p != nil && p.ParentEntityType != nil && p.ParentPropertyKey != "" && p.ParentCollectionName != ""
}

// isSame compares entity type, name and parent properties, absent parents included
func (c CollectionMetadata) isSame(other CollectionMetadata) bool {
	if c.EntityType != other.EntityType || c.Name != other.Name {
		return false
	}
	a, b := c.ParentProps, other.ParentProps
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ParentEntityType == b.ParentEntityType &&
		a.ParentPropertyKey == b.ParentPropertyKey &&
		a.ParentCollectionName == b.ParentCollectionName
}

// isChildOf reports whether c is a subcollection of the (entityType, name) collection
func (c CollectionMetadata) isChildOf(entityType *EntityType, name string) bool {
	return c.IsSubCollection() &&
		c.ParentProps.ParentEntityType == entityType &&
		c.ParentProps.ParentCollectionName == name
}

// CollectionMetadataWithSegments is a registered entry. Segments holds the
// collection names from the root down to this collection.
type CollectionMetadataWithSegments struct {
	CollectionMetadata
	Segments []string
}

func (c CollectionMetadataWithSegments) clone() CollectionMetadataWithSegments {
	c.Segments = append([]string(nil), c.Segments...)
	return c
}

// FullCollectionMetadata is an entry plus its direct subcollections
type FullCollectionMetadata struct {
	CollectionMetadataWithSegments
	SubCollections []CollectionMetadataWithSegments
}

// Repository is the capability every repository exposes to the registry
type Repository interface {
	CollectionPath() string
	Metadata() *FullCollectionMetadata
}

// RepositoryFactory builds a custom repository on top of a base repository
type RepositoryFactory interface {
	NewRepository(base Repository) Repository
}

// RepositoryFactoryFunc adapts a function to RepositoryFactory
type RepositoryFactoryFunc func(base Repository) Repository

func (f RepositoryFactoryFunc) NewRepository(base Repository) Repository {
	return f(base)
}

// RepositoryMetadata binds a custom repository to an entity type and optional collection name
type RepositoryMetadata struct {
	Entity         *EntityType
	Target         RepositoryFactory
	CollectionName string
}

// RepositoryIndex is the binding key. A nil CollectionName binds the entity
// type regardless of collection.
type RepositoryIndex struct {
	EntityName     string
	CollectionName *string
}

// NewRepositoryIndex builds the index, mapping an empty collection name to nil
func NewRepositoryIndex(entityName, collectionName string) RepositoryIndex {
	idx := RepositoryIndex{EntityName: entityName}
	if collectionName != "" {
		idx.CollectionName = &collectionName
	}
	return idx
}

// Validate checks the index has the [string, string|null] shape with a non-empty entity name
func (i RepositoryIndex) Validate() error {
	if i.EntityName == "" {
		return invalidIndex(i.String())
	}
	return nil
}

// String renders the index as its JSON tuple, e.g. ["Band",null]
func (i RepositoryIndex) String() string {
	raw, err := json.Marshal([]interface{}{i.EntityName, i.CollectionName})
	if err != nil {
		return ""
	}
	return string(raw)
}

// ParseRepositoryIndex decodes a binding key produced by RepositoryIndex.String
func ParseRepositoryIndex(key string) (RepositoryIndex, error) {
	var tuple []interface{}
	if err := json.Unmarshal([]byte(key), &tuple); err != nil || len(tuple) != 2 {
		return RepositoryIndex{}, invalidIndex(key)
	}

	name, ok := tuple[0].(string)
	if !ok {
		return RepositoryIndex{}, invalidIndex(key)
	}

	idx := RepositoryIndex{EntityName: name}
	switch v := tuple[1].(type) {
	case nil:
	case string:
		idx.CollectionName = &v
	default:
		return RepositoryIndex{}, invalidIndex(key)
	}
	return idx, idx.Validate()
}

// ValidatorOptions tunes model validation
type ValidatorOptions struct {
	StopAtFirstError bool
}

// Config holds registry-wide settings
type Config struct {
	ValidateModels              bool
	ValidatorOptions            ValidatorOptions
	ThrowOnDuplicatedCollection bool
	RejectDuplicatedRepository  bool
}

// DefaultConfig rejects duplicate collections and skips model validation
func DefaultConfig() Config {
	return Config{
		ValidateModels:              false,
		ThrowOnDuplicatedCollection: true,
	}
}
