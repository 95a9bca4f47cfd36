package errors

import (
	"errors"
	"fmt"
)

// IndexGenError is the structured error type for indexgen.
// It carries enough context to decide between retrying, surfacing to the
// notification sender, and logging.
type IndexGenError struct {
	// Code is the unique error code (e.g., "ERR_202_STORE_WRITE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Network, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for an operator.
	Suggestion string
}

// Error implements the error interface.
func (e *IndexGenError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexGenError) Unwrap() error {
	return e.Cause
}

// Is matches another IndexGenError by code.
func (e *IndexGenError) Is(target error) bool {
	if t, ok := target.(*IndexGenError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *IndexGenError) WithDetail(key, value string) *IndexGenError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion.
func (e *IndexGenError) WithSuggestion(suggestion string) *IndexGenError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexGenError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexGenError {
	return &IndexGenError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexGenError from an existing error, reusing its message.
func Wrap(code string, err error) *IndexGenError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *IndexGenError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates a task store write error.
func StoreError(message string, cause error) *IndexGenError {
	return New(ErrCodeStoreWrite, message, cause)
}

// NetworkError creates a retryable search index error.
func NetworkError(message string, cause error) *IndexGenError {
	return New(ErrCodeIndexUnavailable, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *IndexGenError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexGenError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err (or anything it wraps) is a retryable
// IndexGenError.
func IsRetryable(err error) bool {
	var ie *IndexGenError
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	var ie *IndexGenError
	if errors.As(err, &ie) {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" if err is not an IndexGenError.
func GetCode(err error) string {
	var ie *IndexGenError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// GetCategory extracts the category, or "" if err is not an IndexGenError.
func GetCategory(err error) Category {
	var ie *IndexGenError
	if errors.As(err, &ie) {
		return ie.Category
	}
	return ""
}
