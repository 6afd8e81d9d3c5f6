package repository

import (
	"reflect"
	"strings"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
)

// idKeys are never written into a document body
var idKeys = []string{"id", "_id"}

// checkEntity verifies entity is a non-nil value of the collection's model type
func checkEntity(meta *metadata.FullCollectionMetadata, entity metadata.Entity) error {
	if entity == nil {
		return errors.NewInvalidInputError("entity must not be nil")
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return errors.NewInvalidInputError("entity must be a non-nil pointer")
	}
	if want := meta.EntityType.GoType(); v.Type() != want {
		return errors.NewInvalidInputError("entity type does not match collection").
			WithDetail("collection", meta.Name).
			WithDetail("expected", want.String()).
			WithDetail("got", v.Type().String())
	}
	return nil
}

// serializeEntity maps entity to a document body. Subcollection fields and
// id keys are left out.
func serializeEntity(meta *metadata.FullCollectionMetadata, entity metadata.Entity) (store.Document, error) {
	src := reflectValue(entity)

	// marshal a shallow copy without the repository handles
	clone := reflect.New(src.Type()).Elem()
	clone.Set(src)

	drop := append([]string(nil), idKeys...)
	for _, sub := range meta.SubCollections {
		if sub.ParentProps == nil {
			continue
		}
		field, ok := subCollectionField(clone, sub.ParentProps.ParentPropertyKey)
		if !ok {
			continue
		}
		clone.FieldByIndex(field.Index).Set(reflect.Zero(field.Type))
		if key := bsonKey(field); key != "" {
			drop = append(drop, key)
		}
	}

	raw, err := bson.Marshal(clone.Addr().Interface())
	if err != nil {
		return nil, errors.NewInvalidInputError("entity cannot be serialized").
			WithCause(err).
			WithDetail("entity", meta.EntityType.Name())
	}

	doc, err := store.DecodeDocument(raw)
	if err != nil {
		return nil, errors.NewInternalError("failed to decode serialized entity").WithCause(err)
	}
	for _, key := range drop {
		delete(doc, key)
	}
	return doc, nil
}

// materialize builds an entity of the collection's model from a snapshot
func materialize(meta *metadata.FullCollectionMetadata, snap *store.Snapshot) (metadata.Entity, error) {
	raw, err := store.EncodeDocument(snap.Data)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode document").
			WithCause(err).
			WithDetail("path", snap.Path)
	}
	return decodeEntity(meta, raw, snap.ID)
}

// decodeEntity unmarshals a BSON body into a new entity and sets its id
func decodeEntity(meta *metadata.FullCollectionMetadata, raw []byte, id string) (metadata.Entity, error) {
	entity := meta.EntityType.New()
	if err := bson.Unmarshal(raw, entity); err != nil {
		return nil, errors.NewInternalError("document does not match entity").
			WithCause(err).
			WithDetail("entity", meta.EntityType.Name()).
			WithDetail("id", id)
	}
	entity.SetID(id)
	return entity, nil
}

// subCollectionField finds the struct field named by a parent property key:
// the Go field name, then the bson key, then a case-insensitive Go name.
func subCollectionField(v reflect.Value, key string) (reflect.StructField, bool) {
	t := v.Type()
	if t.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	if f, ok := t.FieldByName(key); ok && f.IsExported() {
		return f, true
	}

	var folded *reflect.StructField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tagName(f) == key {
			return f, true
		}
		if folded == nil && strings.EqualFold(f.Name, key) {
			folded = &f
		}
	}
	if folded != nil {
		return *folded, true
	}
	return reflect.StructField{}, false
}

// assignRepository returns a setter storing repo in entity's subcollection
// field. The field must exist and accept the repository type.
func assignRepository(entity metadata.Entity, collectionName, key string, repo metadata.Repository) (func(), error) {
	if key == "" {
		return nil, errors.NewNoParentPropertyKeyError(collectionName)
	}

	v := reflectValue(entity)
	field, ok := subCollectionField(v, key)
	if !ok {
		return nil, errors.NewNoParentPropertyKeyError(collectionName).
			WithDetail("property", key)
	}

	value := reflect.ValueOf(repo)
	if !value.Type().AssignableTo(field.Type) {
		return nil, errors.NewNoParentPropertyKeyError(collectionName).
			WithDetail("property", key).
			WithDetail("field_type", field.Type.String()).
			WithDetail("repository_type", value.Type().String())
	}

	target := v.FieldByIndex(field.Index)
	return func() { target.Set(value) }, nil
}

func tagName(f reflect.StructField) string {
	tag := f.Tag.Get("bson")
	if i := strings.Index(tag, ","); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// bsonKey returns the document key the codec uses for f, empty when skipped
func bsonKey(f reflect.StructField) string {
	name := tagName(f)
	switch {
	case name == "-":
		return ""
	case name != "":
		return name
	default:
		return strings.ToLower(f.Name)
	}
}

// reflectValue returns the struct value behind an entity pointer
func reflectValue(entity metadata.Entity) reflect.Value {
	return reflect.ValueOf(entity).Elem()
}
