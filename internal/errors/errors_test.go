package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexGenError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping with IndexGenError
	err := New(ErrCodeStoreWrite, "save index task", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, originalErr))
}

func TestIndexGenError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "store error",
			code:     ErrCodeStoreWrite,
			message:  "save failed",
			expected: "[ERR_202_STORE_WRITE] save failed",
		},
		{
			name:     "network error",
			code:     ErrCodeIndexTimeout,
			message:  "solr timed out",
			expected: "[ERR_301_INDEX_TIMEOUT] solr timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestIndexGenError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeStoreWrite, "task A", nil)
	err2 := New(ErrCodeStoreWrite, "task B", nil)
	err3 := New(ErrCodeConfigNotFound, "config", nil)

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIndexGenError_WithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeStoreWrite, "save failed", nil).
		WithDetail("pid", "doi:10.1/x").
		WithSuggestion("check the database")

	assert.Equal(t, "doi:10.1/x", err.Details["pid"])
	assert.Equal(t, "check the database", err.Suggestion)
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeStoreWrite, CategoryStore},
		{ErrCodeIndexUnavailable, CategoryNetwork},
		{ErrCodeMalformedDocument, CategoryValidation},
		{ErrCodeLookupFailed, CategoryInternal},
		{"bad", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, categoryFromCode(tt.code))
		})
	}
}

func TestSeverityAndRetryableFromCode(t *testing.T) {
	assert.Equal(t, SeverityFatal, New(ErrCodeCorruptStore, "", nil).Severity)
	assert.Equal(t, SeverityInfo, New(ErrCodeStoreConflict, "", nil).Severity)
	assert.Equal(t, SeverityWarning, New(ErrCodeIndexUnavailable, "", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodeStoreWrite, "", nil).Severity)

	assert.True(t, New(ErrCodeIndexTimeout, "", nil).Retryable)
	assert.True(t, New(ErrCodeStoreUnavailable, "", nil).Retryable)
	assert.False(t, New(ErrCodeMalformedDocument, "", nil).Retryable)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryable_LooksThroughWrapping(t *testing.T) {
	base := NetworkError("solr down", nil)
	wrapped := fmt.Errorf("lookup pid: %w", base)

	assert.True(t, IsRetryable(base))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeCorruptStore, "corrupt", nil)))
	assert.False(t, IsFatal(StoreError("save", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestGetCodeAndCategory(t *testing.T) {
	err := fmt.Errorf("outer: %w", ValidationError("empty pid", nil))
	assert.Equal(t, ErrCodeInvalidInput, GetCode(err))
	assert.Equal(t, CategoryValidation, GetCategory(err))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}
