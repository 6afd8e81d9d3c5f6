package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// Error codes for the object-document mapping layer. Each code names one
// failure class so callers can branch on it with errors.Is.
const (
	CodeDuplicateCollection         = "DUPLICATE_COLLECTION"
	CodeDuplicateSubCollection      = "DUPLICATE_SUBCOLLECTION"
	CodeCustomRepositoryInheritance = "CUSTOM_REPOSITORY_INHERITANCE"
	CodeInvalidRepositoryIndex      = "INVALID_REPOSITORY_INDEX"
	CodeDuplicateRepository         = "DUPLICATE_REPOSITORY"
	CodeIncompleteOrInvalidPath     = "INCOMPLETE_OR_INVALID_PATH"
	CodeCollectionPathNotFound      = "COLLECTION_PATH_NOT_FOUND"
	CodeInvalidInput                = "INVALID_INPUT"
	CodeNoFirestore                 = "NO_FIRESTORE"
	CodeNoCollectionName            = "NO_COLLECTION_NAME"
	CodeInvalidCollectionOrPath     = "INVALID_COLLECTION_OR_PATH"
	CodeNoCustomRepository          = "NO_CUSTOM_REPOSITORY"
	CodeNoParentCollection          = "NO_PARENT_COLLECTION"
	CodeNoParentPropertyKey         = "NO_PARENT_PROPERTY_KEY"
	CodeNoMetadata                  = "NO_METADATA"
	CodeModelValidation             = "MODEL_VALIDATION"
	CodeRebindAfterCommit           = "REBIND_AFTER_COMMIT"
)

// Sentinels for errors.Is. They match any AppError carrying the same code.
var (
	ErrDuplicateCollection         = sentinel(CodeDuplicateCollection)
	ErrDuplicateSubCollection      = sentinel(CodeDuplicateSubCollection)
	ErrCustomRepositoryInheritance = sentinel(CodeCustomRepositoryInheritance)
	ErrInvalidRepositoryIndex      = sentinel(CodeInvalidRepositoryIndex)
	ErrDuplicateRepository         = sentinel(CodeDuplicateRepository)
	ErrIncompleteOrInvalidPath     = sentinel(CodeIncompleteOrInvalidPath)
	ErrCollectionPathNotFound      = sentinel(CodeCollectionPathNotFound)
	ErrInvalidInputValue           = sentinel(CodeInvalidInput)
	ErrNoFirestore                 = sentinel(CodeNoFirestore)
	ErrNoCollectionName            = sentinel(CodeNoCollectionName)
	ErrInvalidCollectionOrPath     = sentinel(CodeInvalidCollectionOrPath)
	ErrNoCustomRepository          = sentinel(CodeNoCustomRepository)
	ErrNoParentCollection          = sentinel(CodeNoParentCollection)
	ErrNoParentPropertyKey         = sentinel(CodeNoParentPropertyKey)
	ErrNoMetadata                  = sentinel(CodeNoMetadata)
	ErrModelValidation             = sentinel(CodeModelValidation)
	ErrRebindAfterCommit           = sentinel(CodeRebindAfterCommit)
)

func sentinel(code string) *AppError {
	return &AppError{Code: code, Message: strings.ToLower(strings.ReplaceAll(code, "_", " "))}
}

// --- Registration conflicts ---

// NewDuplicateCollectionError reports a top-level collection registered twice
func NewDuplicateCollectionError(entityName, collectionName string) *AppError {
	return NewAppError(ErrorTypeRegistration,
		fmt.Sprintf("Collection<%s> with name '%s' has already been registered", entityName, collectionName),
		http.StatusConflict).
		WithCode(CodeDuplicateCollection).
		WithDetail("entity", entityName).
		WithDetail("collection", collectionName)
}

// NewDuplicateSubCollectionError reports a subcollection registered twice
func NewDuplicateSubCollectionError(entityName, collectionName, propertyKey string) *AppError {
	return NewAppError(ErrorTypeRegistration,
		fmt.Sprintf("SubCollection<%s> with name '%s' and propertyKey '%s' has already been registered", entityName, collectionName, propertyKey),
		http.StatusConflict).
		WithCode(CodeDuplicateSubCollection).
		WithDetail("entity", entityName).
		WithDetail("collection", collectionName).
		WithDetail("property_key", propertyKey)
}

// NewCustomRepositoryInheritanceError reports a custom repository that does not build on the base repository
func NewCustomRepositoryInheritanceError(entityName string) *AppError {
	return NewAppError(ErrorTypeRegistration,
		fmt.Sprintf("Cannot register a custom repository for %s that does not build on the base repository", entityName),
		http.StatusBadRequest).
		WithCode(CodeCustomRepositoryInheritance).
		WithDetail("entity", entityName)
}

// NewInvalidRepositoryIndexError reports a malformed repository binding key
func NewInvalidRepositoryIndexError(index string) *AppError {
	return NewAppError(ErrorTypeValidation,
		"Invalid RepositoryIndex: Must be a tuple [string, (string | null)]",
		http.StatusBadRequest).
		WithCode(CodeInvalidRepositoryIndex).
		WithDetail("index", index)
}

// NewDuplicateRepositoryError reports a second binding for an index that is already bound
func NewDuplicateRepositoryError(index string) *AppError {
	return NewAppError(ErrorTypeRegistration,
		fmt.Sprintf("A custom repository is already registered for %s", index),
		http.StatusConflict).
		WithCode(CodeDuplicateRepository).
		WithDetail("index", index)
}

// --- Resolution failures ---

// NewIncompleteOrInvalidPathError reports a path with an even number of segments
func NewIncompleteOrInvalidPathError(path string) *AppError {
	return NewAppError(ErrorTypeResolution,
		fmt.Sprintf("Invalid collection path: %s", path),
		http.StatusBadRequest).
		WithCode(CodeIncompleteOrInvalidPath).
		WithDetail("path", path)
}

// NewCollectionPathNotFoundError reports a path whose terminal collection is not registered
func NewCollectionPathNotFoundError(path string) *AppError {
	return NewAppError(ErrorTypeResolution,
		fmt.Sprintf("Collection path not found: %s", path),
		http.StatusNotFound).
		WithCode(CodeCollectionPathNotFound).
		WithDetail("path", path)
}

// NewInvalidInputError reports malformed caller input
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrorTypeValidation,
		fmt.Sprintf("Invalid input: %s", message),
		http.StatusBadRequest).
		WithCode(CodeInvalidInput)
}

// NewNoCollectionNameError reports an entity type given without a collection name
func NewNoCollectionNameError(entityName string) *AppError {
	return NewAppError(ErrorTypeResolution,
		fmt.Sprintf("A collection name is required to resolve a repository for %s", entityName),
		http.StatusBadRequest).
		WithCode(CodeNoCollectionName).
		WithDetail("entity", entityName)
}

// NewInvalidCollectionOrPathError reports an unresolvable entity or path
func NewInvalidCollectionOrPathError(ref string, isPath bool) *AppError {
	message := fmt.Sprintf("'%s' is not a valid collection", ref)
	if isPath {
		message = fmt.Sprintf("'%s' is not a valid path for a collection", ref)
	}
	return NewAppError(ErrorTypeResolution, message, http.StatusNotFound).
		WithCode(CodeInvalidCollectionOrPath).
		WithDetail("ref", ref)
}

// NewNoCustomRepositoryError reports a mandatory custom repository that was never registered
func NewNoCustomRepositoryError(ref string) *AppError {
	return NewAppError(ErrorTypeResolution,
		fmt.Sprintf("'%s' does not have a custom repository", ref),
		http.StatusNotFound).
		WithCode(CodeNoCustomRepository).
		WithDetail("ref", ref)
}

// NewNoParentCollectionError reports a subcollection whose parent was never registered
func NewNoParentCollectionError(ref string) *AppError {
	return NewAppError(ErrorTypeResolution,
		fmt.Sprintf("'%s' does not have a valid parent collection", ref),
		http.StatusNotFound).
		WithCode(CodeNoParentCollection).
		WithDetail("ref", ref)
}

// NewNoParentPropertyKeyError reports a subcollection without a usable field on its parent entity
func NewNoParentPropertyKeyError(collectionName string) *AppError {
	return NewAppError(ErrorTypeResolution,
		fmt.Sprintf("Subcollection '%s' has no usable parent property key", collectionName),
		http.StatusInternalServerError).
		WithCode(CodeNoParentPropertyKey).
		WithDetail("collection", collectionName)
}

// NewNoMetadataError reports a repository built for a collection the registry does not know
func NewNoMetadataError(ref string) *AppError {
	kind := "collection"
	if strings.Contains(ref, "/") {
		kind = "subcollection"
	}
	return NewAppError(ErrorTypeResolution,
		fmt.Sprintf("There is no metadata stored for \"%s named: %s\"", kind, ref),
		http.StatusNotFound).
		WithCode(CodeNoMetadata).
		WithDetail("ref", ref)
}

// --- Precondition failures ---

// NewNoFirestoreError reports an operation attempted before the store connection was initialized
func NewNoFirestoreError(operation string) *AppError {
	return NewAppError(ErrorTypePrecondition,
		fmt.Sprintf("Firestore must be initialized before calling %s", operation),
		http.StatusServiceUnavailable).
		WithCode(CodeNoFirestore).
		WithDetail("operation", operation)
}

// NewRebindAfterCommitError reports a transaction whose writes were committed
// but whose subcollection fields could not be rebound. Retrying would apply
// the writes a second time.
func NewRebindAfterCommitError(transactionID string, cause error) *AppError {
	return NewAppError(ErrorTypeInternal,
		"transaction committed but subcollection repositories could not be rebound",
		http.StatusInternalServerError).
		WithCode(CodeRebindAfterCommit).
		WithCause(cause).
		WithDetail("transaction_id", transactionID)
}
