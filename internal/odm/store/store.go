// Package store defines the narrow document-database surface the ODM
// consumes. Paths alternate collection and document ids ("bands/b1/albums").
package store

import (
	"context"
	"time"
)

// Document is the serialized body of a stored entity
type Document map[string]interface{}

// Snapshot is a read of one document
type Snapshot struct {
	ID         string
	Path       string
	Data       Document
	Version    int64
	CreateTime time.Time
	UpdateTime time.Time
}

// Operator is a query comparison operator
type Operator string

const (
	OpEqual              Operator = "=="
	OpNotEqual           Operator = "!="
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not-in"
	OpArrayContains      Operator = "array-contains"
	OpArrayContainsAny   Operator = "array-contains-any"
)

// Filter compares a top-level or dotted field with a value
type Filter struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Order sorts results by a field
type Order struct {
	Field      string
	Descending bool
}

// Query selects documents of one collection. Filters are ANDed.
type Query struct {
	Filters []Filter
	OrderBy []Order
	Limit   int
	Offset  int
}

// Where appends a filter and returns the query
func (q Query) Where(field string, op Operator, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Operator: op, Value: value})
	return q
}

// Client is a document database connection
type Client interface {
	Collection(path string) CollectionRef
	// RunTransaction runs fn atomically. fn may be invoked more than once when
	// the store retries on contention; each attempt gets a fresh Transaction.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
	Batch() WriteBatch
	Close(ctx context.Context) error
}

// CollectionRef addresses a collection
type CollectionRef interface {
	Path() string
	// Doc addresses a document; an empty id allocates a new one
	Doc(id string) DocumentRef
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
}

// DocumentRef addresses a document
type DocumentRef interface {
	ID() string
	Path() string
	Get(ctx context.Context) (*Snapshot, error)
	// Create fails with errors.ErrDocumentExists when the document exists
	Create(ctx context.Context, data Document) error
	Set(ctx context.Context, data Document) error
	// Update merges top-level fields and fails with errors.ErrDocumentNotFound when missing
	Update(ctx context.Context, data Document) error
	Delete(ctx context.Context) error
}

// Transaction is the handle passed to a transaction function. Reads must
// precede writes; writes are applied on commit.
type Transaction interface {
	Get(ref DocumentRef) (*Snapshot, error)
	Query(col CollectionRef, q Query) ([]*Snapshot, error)
	Create(ref DocumentRef, data Document) error
	Set(ref DocumentRef, data Document) error
	Update(ref DocumentRef, data Document) error
	Delete(ref DocumentRef) error
}

// WriteBatch queues writes and commits them atomically
type WriteBatch interface {
	Create(ref DocumentRef, data Document)
	Set(ref DocumentRef, data Document)
	Update(ref DocumentRef, data Document)
	Delete(ref DocumentRef)
	Commit(ctx context.Context) error
	Len() int
}

// WriteKind names a queued mutation
type WriteKind string

const (
	WriteCreate WriteKind = "create"
	WriteSet    WriteKind = "set"
	WriteUpdate WriteKind = "update"
	WriteDelete WriteKind = "delete"
)

// Write is a queued mutation used by batch and transaction implementations
type Write struct {
	Kind WriteKind
	Path string
	Data Document
}
