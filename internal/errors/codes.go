// Package errors provides structured error handling for indexgen.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Task store errors
//   - 3XX: Network errors (search index, notification transport)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates task store errors.
	CategoryStore Category = "STORE"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
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

	// Store errors (200-299)
	ErrCodeStoreUnavailable = "ERR_201_STORE_UNAVAILABLE"
	ErrCodeStoreWrite       = "ERR_202_STORE_WRITE"
	ErrCodeStoreRead        = "ERR_203_STORE_READ"
	ErrCodeStoreConflict    = "ERR_204_STORE_CONFLICT"
	ErrCodeCorruptStore     = "ERR_205_CORRUPT_STORE"
	ErrCodeFileNotFound     = "ERR_206_FILE_NOT_FOUND"

	// Network errors (300-399)
	ErrCodeIndexTimeout      = "ERR_301_INDEX_TIMEOUT"
	ErrCodeIndexUnavailable  = "ERR_302_INDEX_UNAVAILABLE"
	ErrCodeNotifyUnavailable = "ERR_303_NOTIFY_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidSnapshot   = "ERR_402_INVALID_SNAPSHOT"
	ErrCodeMalformedDocument = "ERR_403_MALFORMED_DOCUMENT"
	ErrCodeInvalidEvent      = "ERR_404_INVALID_EVENT"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeLookupFailed     = "ERR_502_LOOKUP_FAILED"
	ErrCodeGenerationFailed = "ERR_503_GENERATION_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "202" from "ERR_202_STORE_WRITE"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptStore:
		return SeverityFatal
	case ErrCodeStoreConflict:
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a transient failure.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeIndexTimeout, ErrCodeIndexUnavailable, ErrCodeNotifyUnavailable:
		return true
	default:
		return false
	}
}
