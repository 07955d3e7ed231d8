package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError with the same code and message, so wrapped
// sentinels still satisfy errors.Is after NewDomainErrorWithCause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithCause returns a copy of the sentinel e carrying err as its cause.
func (e *DomainError) WithCause(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeStoreNotFound    = "STORE_NOT_FOUND"
	ErrCodeExtraction       = "EXTRACTION_FAILED"
	ErrCodeEmbedding        = "EMBEDDING_FAILED"
	ErrCodeUnavailable      = "UNAVAILABLE"
)

// Validation errors
var (
	ErrInvalidDocumentStatus     = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrInvalidConversationStatus = NewDomainError(ErrCodeValidation, "invalid conversation status")
	ErrInvalidMessageRole        = NewDomainError(ErrCodeValidation, "invalid message role")
	ErrInvalidUserRole           = NewDomainError(ErrCodeValidation, "invalid user role")
	ErrMissingRequiredField      = NewDomainError(ErrCodeValidation, "missing required field")
	ErrEmptyQuery                = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrEmptyPayload              = NewDomainError(ErrCodeValidation, "document payload is empty")
)

// Not found errors
var (
	ErrCourseNotFound       = NewDomainError(ErrCodeNotFound, "course not found")
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrPassagesNotFound     = NewDomainError(ErrCodeNotFound, "no passages found for document")
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
	ErrUserNotFound         = NewDomainError(ErrCodeNotFound, "user not found")
	ErrAPIKeyNotFound       = NewDomainError(ErrCodeNotFound, "api key not found")
	ErrPayloadNotFound      = NewDomainError(ErrCodeNotFound, "document payload not found")
	ErrEnrollmentNotFound   = NewDomainError(ErrCodeNotFound, "enrollment not found")
)

// ErrStoreNotFound is returned for any knowledge store operation on a course id
// that has no store.
var ErrStoreNotFound = NewDomainError(ErrCodeStoreNotFound, "knowledge store not found for course")

// Already exists errors
var (
	ErrCourseAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "course already exists")
	ErrUserAlreadyExists   = NewDomainError(ErrCodeAlreadyExists, "user already exists")
	ErrAPIKeyAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked      = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey      = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrInvalidCredentials = NewDomainError(ErrCodeUnauthorized, "invalid username or password")
	ErrNotCourseOwner     = NewDomainError(ErrCodeForbidden, "course belongs to another instructor")
	ErrInstructorOnly     = NewDomainError(ErrCodeForbidden, "operation requires an instructor")
	ErrStudentOnly        = NewDomainError(ErrCodeForbidden, "operation requires a student")
	ErrNotEnrolled        = NewDomainError(ErrCodeForbidden, "not enrolled in course")
)

// Ingestion errors
var (
	ErrExtractionFailed = NewDomainError(ErrCodeExtraction, "text extraction failed")
	ErrEmbeddingFailed  = NewDomainError(ErrCodeEmbedding, "embedding generation failed")
	ErrIngestionBusy    = NewDomainError(ErrCodeUnavailable, "ingestion queue is full")
)

// Operation errors
var (
	ErrDocumentNotReady       = NewDomainError(ErrCodeInvalidOperation, "document has not completed ingestion")
	ErrConversationChanged    = NewDomainError(ErrCodeInvalidOperation, "conversation was changed by another request")
	ErrAvailabilityVerifyFail = NewDomainError(ErrCodeInternalError, "passage availability post-condition failed")
	ErrPassageRemovalFail     = NewDomainError(ErrCodeInternalError, "passages remain after removal")
	ErrStorageOperationFail   = NewDomainError(ErrCodeInternalError, "storage operation failed")
	ErrEmptyQuiz              = NewDomainError(ErrCodeInternalError, "quiz generator returned no valid questions")
)
