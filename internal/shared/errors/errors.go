package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies an AppError and fixes its default HTTP status
type ErrorType string

const (
	ErrorTypeRegistration   ErrorType = "REGISTRATION_ERROR"
	ErrorTypeResolution     ErrorType = "RESOLUTION_ERROR"
	ErrorTypePrecondition   ErrorType = "PRECONDITION_ERROR"
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeConflict       ErrorType = "CONFLICT_ERROR"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"
)

var defaultStatus = map[ErrorType]int{
	ErrorTypeRegistration:   http.StatusConflict,
	ErrorTypeResolution:     http.StatusNotFound,
	ErrorTypePrecondition:   http.StatusPreconditionFailed,
	ErrorTypeValidation:     http.StatusBadRequest,
	ErrorTypeInfrastructure: http.StatusInternalServerError,
	ErrorTypeNotFound:       http.StatusNotFound,
	ErrorTypeConflict:       http.StatusConflict,
	ErrorTypeInternal:       http.StatusInternalServerError,
}

// Status returns the HTTP status used when an error of this type sets none
func (t ErrorType) Status() int {
	if s, ok := defaultStatus[t]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Document store errors. Store implementations wrap these as causes so
// callers can match them with errors.Is.
var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDocumentExists     = errors.New("document already exists")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrTransactionAborted = errors.New("transaction aborted by concurrent modification")
)

// AppError is the error returned across package boundaries
type AppError struct {
	Type     ErrorType              `json:"type"`
	Message  string                 `json:"message"`
	Code     string                 `json:"code,omitempty"`
	HTTPCode int                    `json:"-"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Cause    error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same non-empty code, which lets the
// coded sentinels in odm_errors.go be used with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// NewAppError creates an error of errorType. A zero httpCode uses the
// default status of the type.
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	if httpCode == 0 {
		httpCode = errorType.Status()
	}
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, 0)
}

func NewInfrastructureError(message string) *AppError {
	return NewAppError(ErrorTypeInfrastructure, message, 0)
}

// NewNotFoundError reports a missing resource, e.g. NewNotFoundError("document")
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, resource+" not found", 0)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, 0)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, 0)
}

// ValidationError is one failed model rule
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors collects the failed rules of one model
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make([]ValidationError, 0)}
}

func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (ve *ValidationErrors) Add(field, message string, value interface{}) *ValidationErrors {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message, Value: value})
	return ve
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError returns nil when nothing failed
func (ve *ValidationErrors) ToAppError() *AppError {
	if !ve.HasErrors() {
		return nil
	}
	return NewValidationError("validation failed").
		WithCode(CodeModelValidation).
		WithDetail("validation_errors", ve.Errors)
}

// HTTPStatus returns the HTTP status carried by err, 500 when err is not an AppError
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	return http.StatusInternalServerError
}

func hasType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound) || errors.Is(err, ErrDocumentNotFound)
}

func IsValidation(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

func IsConflict(err error) bool {
	return hasType(err, ErrorTypeConflict) || errors.Is(err, ErrDocumentExists)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
