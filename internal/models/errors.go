// -----------------------------------------------------------------------
// Error taxonomy - every tool failure maps to exactly one code
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a tool failure. The set is closed; handlers map
// unknown errors to InternalError.
type ErrorCode string

const (
	CodeValidation              ErrorCode = "ValidationError"
	CodeNotFound                ErrorCode = "NotFound"
	CodeConflict                ErrorCode = "ConflictError"
	CodeGateBlocked             ErrorCode = "GateBlocked"
	CodeDependenciesNotResolved ErrorCode = "DependenciesNotResolved"
	CodeNoTransitionAvailable   ErrorCode = "NoTransitionAvailable"
	CodeCascadeDepthExceeded    ErrorCode = "CascadeDepthExceeded"
	CodeConcurrencyExhausted    ErrorCode = "ConcurrencyExhausted"
	CodeDatabase                ErrorCode = "DatabaseError"
	CodeInternal                ErrorCode = "InternalError"
)

// ToolError carries the code, a human-readable message and structured
// details (missing note keys, unresolved blocker ids, cycle paths) so
// agents can act without a round-trip.
type ToolError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError reports invalid tool input.
func NewValidationError(format string, args ...any) *ToolError {
	return &ToolError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *ToolError {
	return &ToolError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", entity, id),
		Details: map[string]any{"id": id},
	}
}

// NewConflictError reports duplicates and cycle violations.
func NewConflictError(message string, details map[string]any) *ToolError {
	return &ToolError{Code: CodeConflict, Message: message, Details: details}
}

// NewGateBlockedError reports missing required notes for a transition.
func NewGateBlockedError(missing []string) *ToolError {
	return &ToolError{
		Code:    CodeGateBlocked,
		Message: fmt.Sprintf("transition blocked by missing required notes: %v", missing),
		Details: map[string]any{"missing": missing},
	}
}

// NewDependenciesNotResolvedError reports unresolved blockers on a
// transition into role terminal.
func NewDependenciesNotResolvedError(blockers []string) *ToolError {
	return &ToolError{
		Code:    CodeDependenciesNotResolved,
		Message: fmt.Sprintf("item has unresolved blockers: %v", blockers),
		Details: map[string]any{"blockers": blockers},
	}
}

// NewNoTransitionError reports a trigger that cannot resolve.
func NewNoTransitionError(format string, args ...any) *ToolError {
	return &ToolError{Code: CodeNoTransitionAvailable, Message: fmt.Sprintf(format, args...)}
}

// NewConcurrencyExhaustedError reports write contention that outlasted the
// retry window.
func NewConcurrencyExhaustedError(err error) *ToolError {
	return &ToolError{Code: CodeConcurrencyExhausted, Message: fmt.Sprintf("write contention: %v", err)}
}

// NewDatabaseError wraps a store-level failure.
func NewDatabaseError(err error) *ToolError {
	return &ToolError{Code: CodeDatabase, Message: err.Error()}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *ToolError {
	return &ToolError{Code: CodeInternal, Message: err.Error()}
}

// AsToolError unwraps err into a ToolError, converting unknown errors to
// InternalError so no failure escapes the taxonomy.
func AsToolError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return NewInternalError(err)
}

// CodeOf returns the taxonomy code for any error.
func CodeOf(err error) ErrorCode {
	return AsToolError(err).Code
}
