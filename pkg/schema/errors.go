package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeStore             = "STORE_ERROR"
)

// FoldError is the structured error type for all nodefold operations.
type FoldError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FoldError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FoldError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FoldError.
func NewError(code, message string) *FoldError {
	return &FoldError{Code: code, Message: message}
}

// NewErrorf creates a new FoldError with a formatted message.
func NewErrorf(code, format string, args ...any) *FoldError {
	return &FoldError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *FoldError) WithNode(nodeID string) *FoldError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FoldError) WithCause(err error) *FoldError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FoldError) WithDetails(details map[string]any) *FoldError {
	e.Details = details
	return e
}
