package errors

import (
	"fmt"
)

// ClipError is the structured error type for clipstash.
// It provides rich context for error handling, logging, and degradation
// decisions on the query path.
type ClipError struct {
	// Code is the unique error code (e.g., "ERR_301_EMBEDDING_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Backend, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *ClipError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ClipError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ClipError.
func (e *ClipError) Is(target error) bool {
	if t, ok := target.(*ClipError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ClipError) WithDetail(key, value string) *ClipError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new ClipError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ClipError {
	return &ClipError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ClipError from an existing error.
// The error's message becomes the ClipError message.
func Wrap(code string, err error) *ClipError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// EmbeddingUnavailable creates an embedding backend error. Retryable.
func EmbeddingUnavailable(message string, cause error) *ClipError {
	return New(ErrCodeEmbeddingUnavailable, message, cause)
}

// ExtractionFailed creates a content extraction error. Retryable.
func ExtractionFailed(message string, cause error) *ClipError {
	return New(ErrCodeExtractionFailed, message, cause)
}

// NoContent indicates a document produced no indexable text. Benign:
// the pipeline records it and skips indexing instead of failing.
func NoContent(message string) *ClipError {
	return New(ErrCodeNoContent, message, nil)
}

// IndexWriteFailed creates an index write error. Retryable.
func IndexWriteFailed(message string, cause error) *ClipError {
	return New(ErrCodeIndexWriteFailed, message, cause)
}

// IndexUnavailable creates an index availability error.
// The query path degrades to the remaining index rather than failing.
func IndexUnavailable(message string, cause error) *ClipError {
	return New(ErrCodeIndexUnavailable, message, cause)
}

// SearchTimeout creates a sub-search timeout error. Retryable.
func SearchTimeout(message string, cause error) *ClipError {
	return New(ErrCodeSearchTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ClipError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ClipError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a ClipError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*ClipError); ok {
		return ce.Retryable
	}
	return false
}

// GetCode extracts the error code from a ClipError.
// Returns empty string if not a ClipError.
func GetCode(err error) string {
	if ce, ok := err.(*ClipError); ok {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a ClipError.
// Returns empty string if not a ClipError.
func GetCategory(err error) Category {
	if ce, ok := err.(*ClipError); ok {
		return ce.Category
	}
	return ""
}
