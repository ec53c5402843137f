package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeInvalidYAML     = "INVALID_YAML"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeCycleDetected   = "CYCLE_DETECTED"
	ErrCodeStore           = "STORE_ERROR"
	ErrCodeQuery           = "QUERY_ERROR"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// StudioError is the structured error type returned by the editor collaborators.
type StudioError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	BlockID string         `json:"block_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *StudioError) Error() string {
	if e.BlockID != "" {
		return fmt.Sprintf("[%s] block %s: %s", e.Code, e.BlockID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StudioError) Unwrap() error {
	return e.Cause
}

// NewError creates a new StudioError.
func NewError(code, message string) *StudioError {
	return &StudioError{Code: code, Message: message}
}

// NewErrorf creates a new StudioError with a formatted message.
func NewErrorf(code, format string, args ...any) *StudioError {
	return &StudioError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithBlock attaches a block ID to the error.
func (e *StudioError) WithBlock(blockID string) *StudioError {
	e.BlockID = blockID
	return e
}

// WithCause attaches an underlying cause.
func (e *StudioError) WithCause(err error) *StudioError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *StudioError) WithDetails(details map[string]any) *StudioError {
	e.Details = details
	return e
}
