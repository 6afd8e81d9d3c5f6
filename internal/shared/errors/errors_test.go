package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Behavior(t *testing.T) {
	err := NewValidationError("invalid input").WithCode("VAL001").WithDetail("field", "name")
	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, http.StatusBadRequest, err.HTTPCode)
	assert.Equal(t, "invalid input", err.Message)
	assert.Equal(t, "VAL001", err.Code)
	assert.Equal(t, "name", err.Details["field"])
	assert.Equal(t, "invalid input", err.Error())
}

func TestAppError_WithCause_Unwrap(t *testing.T) {
	cause := ErrDocumentNotFound
	err := NewNotFoundError("document").WithCause(cause)
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, ErrDocumentNotFound))
	assert.Equal(t, "document not found: document not found", err.Error())
}

func TestValidationErrors(t *testing.T) {
	ve := NewValidationErrors()
	assert.Nil(t, ve.ToAppError())

	ve.Add("name", "must be set", "")
	assert.True(t, ve.HasErrors())
	assert.Equal(t, "validation failed: must be set", ve.Error())
	ve.Add("year", "must be positive", -1)
	assert.Equal(t, "validation failed: must be set; must be positive", ve.Error())

	appErr := ve.ToAppError()
	require.NotNil(t, appErr)
	assert.Equal(t, ErrorTypeValidation, appErr.Type)
	assert.True(t, errors.Is(appErr, ErrModelValidation))
	assert.True(t, IsValidation(appErr))
}

func TestSentinels_MatchByCode(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"duplicate collection", NewDuplicateCollectionError("Band", "bands"), ErrDuplicateCollection},
		{"duplicate subcollection", NewDuplicateSubCollectionError("Album", "albums", "Albums"), ErrDuplicateSubCollection},
		{"inheritance", NewCustomRepositoryInheritanceError("Band"), ErrCustomRepositoryInheritance},
		{"index", NewInvalidRepositoryIndexError(`[""]`), ErrInvalidRepositoryIndex},
		{"incomplete path", NewIncompleteOrInvalidPathError("a/b"), ErrIncompleteOrInvalidPath},
		{"path not found", NewCollectionPathNotFoundError("nope"), ErrCollectionPathNotFound},
		{"invalid input", NewInvalidInputError("empty path"), ErrInvalidInputValue},
		{"no firestore", NewNoFirestoreError("GetRepository"), ErrNoFirestore},
		{"no collection name", NewNoCollectionNameError("Band"), ErrNoCollectionName},
		{"invalid collection", NewInvalidCollectionOrPathError("Band", false), ErrInvalidCollectionOrPath},
		{"no custom repository", NewNoCustomRepositoryError("bands"), ErrNoCustomRepository},
		{"no parent", NewNoParentCollectionError("albums"), ErrNoParentCollection},
		{"no parent key", NewNoParentPropertyKeyError("albums"), ErrNoParentPropertyKey},
		{"no metadata", NewNoMetadataError("bands"), ErrNoMetadata},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, errors.Is(tc.err, tc.sentinel))
			wrapped := fmt.Errorf("outer: %w", tc.err)
			assert.True(t, errors.Is(wrapped, tc.sentinel))
			assert.False(t, errors.Is(tc.err, ErrDocumentNotFound))
		})
	}

	assert.False(t, errors.Is(NewDuplicateCollectionError("Band", "bands"), ErrDuplicateSubCollection))
}

func TestODMErrorMessages(t *testing.T) {
	assert.Equal(t, "Collection<Band> with name 'bands' has already been registered",
		NewDuplicateCollectionError("Band", "bands").Error())
	assert.Equal(t, "SubCollection<Album> with name 'albums' and propertyKey 'Albums' has already been registered",
		NewDuplicateSubCollectionError("Album", "albums", "Albums").Error())
	assert.Equal(t, "'bands/b1/albums' is not a valid path for a collection",
		NewInvalidCollectionOrPathError("bands/b1/albums", true).Error())
	assert.Equal(t, "'Band' is not a valid collection",
		NewInvalidCollectionOrPathError("Band", false).Error())
	assert.Equal(t, "Firestore must be initialized before calling CreateBatch",
		NewNoFirestoreError("CreateBatch").Error())
	assert.Equal(t, `There is no metadata stored for "subcollection named: bands/b1/albums"`,
		NewNoMetadataError("bands/b1/albums").Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(NewDuplicateCollectionError("Band", "bands")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("wrap: %w", NewCollectionPathNotFoundError("x"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestIsNotFound_IsConflict(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError("doc")))
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", ErrDocumentNotFound)))
	assert.False(t, IsNotFound(NewValidationError("bad")))

	assert.True(t, IsConflict(NewConflictError("exists")))
	assert.True(t, IsConflict(fmt.Errorf("create: %w", ErrDocumentExists)))
	assert.False(t, IsConflict(ErrDocumentNotFound))
}

func TestErrorType_Status(t *testing.T) {
	assert.Equal(t, http.StatusPreconditionFailed, ErrorTypePrecondition.Status())
	assert.Equal(t, http.StatusNotFound, ErrorTypeResolution.Status())
	assert.Equal(t, http.StatusInternalServerError, ErrorType("UNKNOWN").Status())

	assert.Equal(t, http.StatusTeapot, NewAppError(ErrorTypeInternal, "tea", http.StatusTeapot).HTTPCode)
	assert.Equal(t, http.StatusConflict, NewAppError(ErrorTypeRegistration, "dup", 0).HTTPCode)
}
