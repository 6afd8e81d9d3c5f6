package eventbus

import "time"

// Event types published by repositories
const (
	EventTypeDocumentCreated      = "document.created"
	EventTypeDocumentUpdated      = "document.updated"
	EventTypeDocumentDeleted      = "document.deleted"
	EventTypeTransactionCommitted = "transaction.committed"
	EventTypeBatchCommitted       = "batch.committed"
)

// DocumentEventTypes lists the per-document event types
var DocumentEventTypes = []string{
	EventTypeDocumentCreated,
	EventTypeDocumentUpdated,
	EventTypeDocumentDeleted,
}

// DocumentEvent reports a committed write to one document
type DocumentEvent struct {
	Kind       string
	Path       string
	Collection string
	DocumentID string
	Entity     string
	At         time.Time
}

func (e DocumentEvent) Type() string         { return e.Kind }
func (e DocumentEvent) Timestamp() time.Time { return e.At }

// NewDocumentEvent builds a document event stamped with the current time
func NewDocumentEvent(kind, collection, documentID, entity string) DocumentEvent {
	return DocumentEvent{
		Kind:       kind,
		Path:       collection + "/" + documentID,
		Collection: collection,
		DocumentID: documentID,
		Entity:     entity,
		At:         time.Now().UTC(),
	}
}

// CommitEvent reports a committed transaction or batch
type CommitEvent struct {
	Kind   string
	Writes int
	// Attempts is the number of times a transaction executor ran
	Attempts int
	At       time.Time
}

func (e CommitEvent) Type() string         { return e.Kind }
func (e CommitEvent) Timestamp() time.Time { return e.At }
