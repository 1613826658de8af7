package domain

import (
	"errors"
	"fmt"
)

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

// Is reports whether target is a DomainError with the same code and message.
// This lets errors created with NewDomainErrorWithCause match the sentinels below.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
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

// Wrap attaches cause to a copy of the sentinel so errors.Is still matches it.
func Wrap(sentinel *DomainError, cause error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, cause)
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
)

// Validation errors
var (
	ErrDocumentLoad      = NewDomainError(ErrCodeValidation, "document could not be loaded as PDF")
	ErrEmptyIndex        = NewDomainError(ErrCodeValidation, "no embeddings were created from the uploaded documents")
	ErrDimensionMismatch = NewDomainError(ErrCodeValidation, "embedding dimension does not match index")
	ErrInvalidUserID     = NewDomainError(ErrCodeValidation, "invalid user id")
	ErrNotPDF            = NewDomainError(ErrCodeValidation, "only PDF files are accepted")
	ErrNoFiles           = NewDomainError(ErrCodeValidation, "no files selected")
	ErrEmptyQuery        = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrNoSearchableText  = NewDomainError(ErrCodeValidation, "query has no searchable text; documents are indexed as plain ASCII")
	ErrModelMismatch     = NewDomainError(ErrCodeValidation, "documents were indexed with a different embedding model; please upload them again")
)

// Not found errors
var (
	ErrIndexNotFound    = NewDomainError(ErrCodeNotFound, "no documents uploaded yet; please upload a document first")
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrAPIKeyNotFound   = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Authorization errors
var (
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
)

// Upstream errors
var (
	ErrEmbedding  = NewDomainError(ErrCodeUpstream, "embedding request failed")
	ErrGeneration = NewDomainError(ErrCodeUpstream, "answer generation failed")
)

// Storage errors
var (
	ErrBlobStore    = NewDomainError(ErrCodeInternalError, "blob store operation failed")
	ErrIndexCorrupt = NewDomainError(ErrCodeInternalError, "user index is corrupt")
)
