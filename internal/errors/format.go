package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// asIndexGenError returns err as an IndexGenError, wrapping plain errors
// as internal errors.
func asIndexGenError(err error) *IndexGenError {
	var ie *IndexGenError
	if errors.As(err, &ie) {
		return ie
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ie := asIndexGenError(err)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ie.Message))
	if ie.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ie.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", ie.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error, used by the HTTP
// ingestion endpoint for error bodies.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ie := asIndexGenError(err)
	je := jsonError{
		Code:       ie.Code,
		Message:    ie.Message,
		Category:   string(ie.Category),
		Severity:   string(ie.Severity),
		Details:    ie.Details,
		Suggestion: ie.Suggestion,
		Retryable:  ie.Retryable,
	}
	if ie.Cause != nil {
		je.Cause = ie.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs flattens an error into key-value pairs for slog.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var ie *IndexGenError
	if !errors.As(err, &ie) {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", ie.Code,
		"error", ie.Message,
		"retryable", ie.Retryable,
	}
	if ie.Cause != nil {
		attrs = append(attrs, "cause", ie.Cause.Error())
	}
	for k, v := range ie.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
