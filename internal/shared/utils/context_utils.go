package utils

import (
	"context"
	"errors"

	"firestore-odm/internal/shared/contextkeys"
)

// Lookup errors for string values carried in a context
var (
	ErrRequestIDNotFound      = errors.New("requestID not found in context")
	ErrRequestIDNotString     = errors.New("requestID in context is not a string")
	ErrTransactionIDNotFound  = errors.New("transactionID not found in context")
	ErrTransactionIDNotString = errors.New("transactionID in context is not a string")
)

func stringValue(ctx context.Context, key interface{}, missing, wrongType error) (string, error) {
	switch v := ctx.Value(key).(type) {
	case nil:
		return "", missing
	case string:
		return v, nil
	default:
		return "", wrongType
	}
}

// GetRequestIDFromContext returns the inbound request id set by the HTTP layer
func GetRequestIDFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.RequestIDKey, ErrRequestIDNotFound, ErrRequestIDNotString)
}

// GetTransactionIDFromContext returns the id of the enclosing ODM transaction
func GetTransactionIDFromContext(ctx context.Context) (string, error) {
	return stringValue(ctx, contextkeys.TransactionIDKey, ErrTransactionIDNotFound, ErrTransactionIDNotString)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextkeys.RequestIDKey, id)
}

func WithTransactionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextkeys.TransactionIDKey, id)
}

func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, contextkeys.OperationKey, op)
}

func WithComponent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, contextkeys.ComponentKey, name)
}

func WithCollectionPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, contextkeys.CollectionPathKey, path)
}

// InTransaction reports whether ctx was derived inside an ODM transaction
func InTransaction(ctx context.Context) bool {
	id, err := GetTransactionIDFromContext(ctx)
	return err == nil && id != ""
}
