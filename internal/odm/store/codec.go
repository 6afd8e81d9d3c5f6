package store

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EncodeDocument serializes a document body to BSON
func EncodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	return bson.Marshal(map[string]interface{}(doc))
}

// DecodeDocument parses a BSON body. Nested documents decode as primitive.M
// so dotted lookups work without an ordered-document walk.
func DecodeDocument(raw []byte) (Document, error) {
	dec, err := bson.NewDecoder(bsonrw.NewBSONDocumentReader(raw))
	if err != nil {
		return nil, err
	}
	dec.DefaultDocumentM()

	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[string]interface{})
	}
	return Document(out), nil
}

// CloneDocument returns a deep copy through a BSON round trip
func CloneDocument(doc Document) (Document, error) {
	raw, err := EncodeDocument(doc)
	if err != nil {
		return nil, err
	}
	return DecodeDocument(raw)
}

// MergeUpdate applies update onto base. Dotted keys address nested fields;
// intermediate maps are created as needed. base is modified in place.
func MergeUpdate(base, update Document) Document {
	if base == nil {
		base = Document{}
	}
	for key, value := range update {
		parts := strings.Split(key, ".")
		target := map[string]interface{}(base)
		for _, part := range parts[:len(parts)-1] {
			next, ok := asMap(target[part])
			if !ok {
				next = make(map[string]interface{})
			}
			target[part] = next
			target = next
		}
		target[parts[len(parts)-1]] = value
	}
	return base
}

func primitiveMap(v interface{}) (map[string]interface{}, bool) {
	if m, ok := v.(primitive.M); ok {
		return m, true
	}
	return nil, false
}

func primitiveArray(v interface{}) ([]interface{}, bool) {
	if a, ok := v.(primitive.A); ok {
		return a, true
	}
	return nil, false
}
