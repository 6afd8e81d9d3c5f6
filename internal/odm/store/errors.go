package store

import (
	"firestore-odm/internal/shared/errors"
)

// NotFound reports a missing document. It matches errors.ErrDocumentNotFound.
func NotFound(path string) error {
	return errors.NewNotFoundError("document").
		WithCause(errors.ErrDocumentNotFound).
		WithDetail("path", path)
}

// AlreadyExists reports a create over an existing document
func AlreadyExists(path string) error {
	return errors.NewConflictError("document already exists").
		WithCause(errors.ErrDocumentExists).
		WithDetail("path", path)
}

// Aborted reports a transaction that lost a race with a concurrent write
func Aborted(reason string) error {
	return errors.NewConflictError(reason).
		WithCause(errors.ErrTransactionAborted)
}

// InvalidTransaction reports misuse of a transaction or batch handle
func InvalidTransaction(reason string) error {
	return errors.NewValidationError(reason).
		WithCause(errors.ErrInvalidTransaction)
}
