package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "firestore-odm context key " + string(c)
}

// RequestIDKey is the key for the inbound request id in context.Context
const RequestIDKey = contextKey("requestID")

// OperationKey is the key for the repository operation being executed
const OperationKey = contextKey("operation")

// ComponentKey is the key for the component that owns the call
const ComponentKey = contextKey("component")

// TransactionIDKey is the key for the id of the enclosing ODM transaction
const TransactionIDKey = contextKey("transactionID")

// CollectionPathKey is the key for the collection path a repository is bound to
const CollectionPathKey = contextKey("collectionPath")
