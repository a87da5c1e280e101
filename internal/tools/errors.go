package tools

import (
	"errors"
	"fmt"

	"loom/internal/apperr"
)

// Sentinel errors for the tools package. Kept so existing errors.Is call
// sites keep working even though the underlying errors are now *apperr.Error.
var (
	// ErrToolNotFound is returned when a requested tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolAlreadyExists is returned when attempting to register a tool
	// with a name that is already in use.
	ErrToolAlreadyExists = errors.New("tool already exists")

	// ErrInvalidArgs is returned when tool arguments are invalid or malformed.
	ErrInvalidArgs = errors.New("invalid tool arguments")

	// ErrToolTimeout is returned when a tool execution exceeds its time limit.
	ErrToolTimeout = errors.New("tool execution timeout")
)

// NewToolNotFoundError builds the unified error for a missing tool. It wraps
// ErrToolNotFound so existing errors.Is(err, ErrToolNotFound) call sites keep
// matching.
func NewToolNotFoundError(name string) error {
	return apperr.Wrap(apperr.CodeToolNotFound, ErrToolNotFound, "tool not found: %s", name).WithContext("tool", name)
}

// NewToolAlreadyExistsError builds the unified error for a duplicate registration.
func NewToolAlreadyExistsError(name string) error {
	return apperr.Wrap(apperr.CodeValidationError, ErrToolAlreadyExists, "tool already exists: %s", name).WithContext("tool", name)
}

// NewInvalidArgsError builds the unified error for malformed tool arguments.
// cause, if present, is chained beneath ErrInvalidArgs so both the specific
// cause and the ErrInvalidArgs sentinel remain reachable via errors.Is/As.
func NewInvalidArgsError(tool, message string, cause error) error {
	wrapped := ErrInvalidArgs
	if cause != nil {
		wrapped = fmt.Errorf("%w: %w", ErrInvalidArgs, cause)
	}
	return apperr.Wrap(apperr.CodeToolInvalidArgs, wrapped, "invalid arguments for tool %s: %s", tool, message).WithContext("tool", tool)
}

// NewToolTimeoutError builds the unified error for a tool execution that
// exceeded its time budget.
func NewToolTimeoutError(tool, duration string) error {
	return apperr.Wrap(apperr.CodeToolTimeout, ErrToolTimeout, "tool %s execution timed out after %s", tool, duration).
		WithContext("tool", tool).
		WithContext("duration", duration)
}

// NewToolExecutionFailedError builds the unified error for an unexpected
// failure (panic recovery, adapter error) during execute_tracked.
func NewToolExecutionFailedError(tool string, cause error) error {
	return apperr.Wrap(apperr.CodeToolExecutionFailed, cause, "tool %s execution failed", tool).WithContext("tool", tool)
}
