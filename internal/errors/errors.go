package errors

import (
	"errors"
	"fmt"
)

// CodeSearchError is the structured error type for codesearch.
// It carries enough context for logging, CLI rendering and tool adapters.
type CodeSearchError struct {
	// Code is the unique error code (e.g., "ERR_404_INDEX_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinels for errors.Is matching. Matching is by code, so any
// CodeSearchError with the same code satisfies errors.Is against these.
var (
	ErrFileUnreadable       = &CodeSearchError{Code: ErrCodeFileUnreadable, Message: "file unreadable"}
	ErrParseFailure         = &CodeSearchError{Code: ErrCodeParseFailure, Message: "parse failure"}
	ErrEmbeddingUnavailable = &CodeSearchError{Code: ErrCodeEmbeddingUnavailable, Message: "embedding unavailable"}
	ErrCacheCorruption      = &CodeSearchError{Code: ErrCodeCacheCorruption, Message: "embedding cache corrupted"}
	ErrIndexNotFound        = &CodeSearchError{Code: ErrCodeIndexNotFound, Message: "no index for project"}
	ErrDimensionMismatch    = &CodeSearchError{Code: ErrCodeDimensionMismatch, Message: "embedding dimension mismatch"}
	ErrIndexLocked          = &CodeSearchError{Code: ErrCodeIndexLocked, Message: "index is locked by another pass"}
	ErrBinaryFile           = &CodeSearchError{Code: ErrCodeBinaryFile, Message: "binary content"}
)

// Error implements the error interface.
func (e *CodeSearchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CodeSearchError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *CodeSearchError) Is(target error) bool {
	if t, ok := target.(*CodeSearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *CodeSearchError) WithDetail(key, value string) *CodeSearchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *CodeSearchError) WithSuggestion(suggestion string) *CodeSearchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new CodeSearchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CodeSearchError {
	return &CodeSearchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a CodeSearchError with a formatted message and no cause.
func Newf(code string, format string, args ...any) *CodeSearchError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a CodeSearchError from an existing error.
// The error's message becomes the CodeSearchError message.
func Wrap(code string, err error) *CodeSearchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// DimensionMismatch reports a vector whose length differs from the index dimension.
func DimensionMismatch(expected, got int) *CodeSearchError {
	return Newf(ErrCodeDimensionMismatch, "dimension mismatch: index has %d, got %d", expected, got).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got)).
		WithSuggestion("re-index with --force after changing the embedding model")
}

// IndexNotFound reports a project that has never been indexed.
func IndexNotFound(root string) *CodeSearchError {
	return Newf(ErrCodeIndexNotFound, "no index found for %s", root).
		WithDetail("path", root).
		WithSuggestion("run 'codesearch index' in the project first")
}

// EmbeddingUnavailable wraps a model load or batch failure.
func EmbeddingUnavailable(message string, cause error) *CodeSearchError {
	return New(ErrCodeEmbeddingUnavailable, message, cause)
}

// FileUnreadable wraps a per-file read failure.
func FileUnreadable(path string, cause error) *CodeSearchError {
	return New(ErrCodeFileUnreadable, fmt.Sprintf("cannot read %s", path), cause).WithDetail("path", path)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CodeSearchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *CodeSearchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CodeSearchError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ce *CodeSearchError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ce *CodeSearchError
	if errors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first CodeSearchError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ce *CodeSearchError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
