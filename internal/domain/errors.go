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

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeEmbedding     = "EMBEDDING_ERROR"
	ErrCodeVectorIndex   = "VECTOR_INDEX_ERROR"
	ErrCodeGeneration    = "GENERATION_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidAvatarColor   = NewDomainError(ErrCodeValidation, "avatar color must be a hex color")
	ErrInvalidChatRole      = NewDomainError(ErrCodeValidation, "invalid chat message role")
)

// Not found errors
var (
	ErrPersonaNotFound = NewDomainError(ErrCodeNotFound, "persona not found")
)

// Authorization errors
var (
	ErrInvalidToken = NewDomainError(ErrCodeUnauthorized, "invalid api token")
)

// Provider errors. Services wrap the low-level cause so callers can
// branch on the code without parsing provider messages.
var (
	ErrEmbeddingEmpty  = NewDomainError(ErrCodeEmbedding, "embedding provider returned no vector")
	ErrGenerationEmpty = NewDomainError(ErrCodeGeneration, "generation provider returned no candidate")
)

// NewMissingFieldError reports a required field that was not set.
func NewMissingFieldError(field string) *DomainError {
	return NewDomainErrorWithCause(ErrCodeValidation, field+" is required", ErrMissingRequiredField)
}

// NewEmbeddingError wraps a provider failure as an embedding error.
func NewEmbeddingError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbedding, "embedding failed", err)
}

// NewVectorIndexError wraps a vector index failure.
func NewVectorIndexError(op string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeVectorIndex, fmt.Sprintf("vector index %s failed", op), err)
}

// NewGenerationError wraps a generation provider failure.
func NewGenerationError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeGeneration, "generation failed", err)
}
