package tool

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ErrorCodeResolution is returned when chain resolution fails: unknown
	// tool, circular executor reference, malformed manifest, or depth bound.
	ErrorCodeResolution = "RESOLUTION_FAILED"
	// ErrorCodeConfiguration is returned when a required config field such as
	// command or url is missing or invalid.
	ErrorCodeConfiguration = "CONFIGURATION_INVALID"
	// ErrorCodePrecondition is returned when a required runtime input, such
	// as a script source path, was not supplied.
	ErrorCodePrecondition = "PRECONDITION_FAILED"
	// ErrorCodeSubprocess is returned for subprocess infrastructure failures:
	// spawn failure, binary not found, permission denied.
	ErrorCodeSubprocess = "SUBPROCESS_FAILURE"
	// ErrorCodeHTTP is returned for HTTP transport failures and non-success
	// statuses after retries are exhausted.
	ErrorCodeHTTP = "HTTP_FAILURE"
	// ErrorCodeTimeout is returned when an invocation exceeds its deadline.
	ErrorCodeTimeout = "TIMEOUT"
	// ErrorCodeDecode is returned when a response payload cannot be read or
	// decoded.
	ErrorCodeDecode = "DECODE_FAILURE"
	// ErrorCodeCanceled is returned when the caller cancels an invocation
	// before its deadline.
	ErrorCodeCanceled = "CANCELED"
)

// ToolError is a structured invocation error that flows across primitives and
// the executor without losing retryability or machine-readable codes.
type ToolError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return "tool: invocation failed"
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newToolError(code, message string, retryable bool, cause error) *ToolError {
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:      strings.TrimSpace(code),
		Message:   cleanMsg,
		Retryable: retryable,
		Cause:     cause,
	}
}

func withErrorDetails(err *ToolError, details map[string]any) *ToolError {
	if err == nil || len(details) == 0 {
		return err
	}
	if err.Details == nil {
		err.Details = make(map[string]any, len(details))
	}
	for key, value := range details {
		err.Details[key] = value
	}
	return err
}

func toolErrorFrom(err error) (*ToolError, bool) {
	if err == nil {
		return nil, false
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

func toolErrorCode(err error) string {
	if toolErr, ok := toolErrorFrom(err); ok && toolErr != nil {
		return toolErr.Code
	}
	return ""
}
