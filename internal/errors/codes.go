// Package errors provides structured error handling for clipstash.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and storage errors
//   - 3XX: External backend errors (embedding, extraction)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and index storage errors.
	CategoryIO Category = "IO"
	// CategoryBackend indicates external backend errors (embedder, extractor).
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO and storage errors (200-299)
	ErrCodeDocumentNotFound = "ERR_201_DOCUMENT_NOT_FOUND"
	ErrCodeIndexWriteFailed = "ERR_202_INDEX_WRITE_FAILED"
	ErrCodeIndexUnavailable = "ERR_203_INDEX_UNAVAILABLE"
	ErrCodeCorruptIndex     = "ERR_204_CORRUPT_INDEX"
	ErrCodeStoreLocked      = "ERR_205_STORE_LOCKED"

	// External backend errors (300-399)
	ErrCodeEmbeddingUnavailable = "ERR_301_EMBEDDING_UNAVAILABLE"
	ErrCodeExtractionFailed     = "ERR_302_EXTRACTION_FAILED"
	ErrCodeSearchTimeout        = "ERR_303_SEARCH_TIMEOUT"
	ErrCodeNoContent            = "ERR_304_NO_CONTENT"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty        = "ERR_402_QUERY_EMPTY"
	ErrCodeDimensionMismatch = "ERR_403_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract hundreds digit (e.g., "2" from "ERR_202_INDEX_WRITE_FAILED")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeNoContent:
		// Nothing to index is a benign outcome, not a failure.
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Retryable failures are recovered at the pipeline level with exponential
// backoff; the integrity scanner retries whatever the pipeline gave up on.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingUnavailable,
		ErrCodeExtractionFailed,
		ErrCodeIndexWriteFailed,
		ErrCodeSearchTimeout:
		return true
	default:
		return false
	}
}
