// Package errors provides structured error handling for codesearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (files, cache, store)
//   - 3XX: Embedding model errors
//   - 4XX: Validation and lookup errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, cache and store I/O errors.
	CategoryIO Category = "IO"
	// CategoryModel indicates embedding model errors.
	CategoryModel Category = "MODEL"
	// CategoryValidation indicates input validation and lookup errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the current pass or request.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the caller can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileUnreadable  = "ERR_201_FILE_UNREADABLE"
	ErrCodeFileTooLarge    = "ERR_202_FILE_TOO_LARGE"
	ErrCodeBinaryFile      = "ERR_203_BINARY_FILE"
	ErrCodeCacheCorruption = "ERR_204_CACHE_CORRUPTION"
	ErrCodeStoreFailed     = "ERR_205_STORE_FAILED"
	ErrCodeIndexLocked     = "ERR_206_INDEX_LOCKED"

	// Model errors (300-399)
	ErrCodeEmbeddingUnavailable = "ERR_301_EMBEDDING_UNAVAILABLE"
	ErrCodeModelTimeout         = "ERR_302_MODEL_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodeIndexNotFound     = "ERR_404_INDEX_NOT_FOUND"
	ErrCodeInvalidPath       = "ERR_405_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeParseFailure  = "ERR_502_PARSE_FAILURE"
	ErrCodeSearchFailed  = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed   = "ERR_504_INDEX_FAILED"
	ErrCodeTaskCancelled = "ERR_505_TASK_CANCELLED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryModel
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeEmbeddingUnavailable, ErrCodeDimensionMismatch, ErrCodeStoreFailed:
		return SeverityFatal
	case ErrCodeFileUnreadable, ErrCodeFileTooLarge, ErrCodeBinaryFile,
		ErrCodeParseFailure, ErrCodeCacheCorruption:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeModelTimeout, ErrCodeIndexLocked:
		return true
	default:
		return false
	}
}
