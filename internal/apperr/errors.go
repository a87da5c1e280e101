// Package apperr defines the single error shape used across loom's
// components. It replaces the per-package sentinel-plus-typed-error
// pattern the teacher uses (tools.ToolNotFoundError, runner.ErrSessionNotFound,
// provider-specific errors) with one Code taxonomy and one Error struct, so a
// caller anywhere in the system can type-assert once instead of per package.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies the category of a failure. Values are stable and may be
// serialized to clients (the Chat Facade and cmd/loomd's HTTP layer expose
// them verbatim in error responses).
type Code string

const (
	// CLI / validation
	CodeCLIUsage         Code = "CLI_USAGE_ERROR"
	CodeCLIArgument      Code = "CLI_INVALID_ARGUMENT"
	CodeValidationError  Code = "VALIDATION_ERROR"
	CodeToolInvalidArgs  Code = "TOOL_INVALID_PARAMS"

	// Lookup failures
	CodeSessionNotFound   Code = "SESSION_NOT_FOUND"
	CodeToolNotFound      Code = "TOOL_NOT_FOUND"
	CodeNotFound          Code = "NOT_FOUND"
	CodeFileNotFound      Code = "FILE_NOT_FOUND"
	CodeFileAccessDenied  Code = "FILE_ACCESS_DENIED"
	CodeFileTooLarge      Code = "FILE_TOO_LARGE"
	CodeDirectoryNotFound Code = "DIRECTORY_NOT_FOUND"

	// Provider / LLM
	CodeLLMAPIError        Code = "LLM_API_ERROR"
	CodeLLMContextTooLong  Code = "LLM_CONTEXT_TOO_LONG"
	CodeLLMModelNotFound   Code = "LLM_MODEL_NOT_FOUND"
	CodeProviderAuthFailed Code = "PROVIDER_AUTH_FAILED"
	CodeProviderRateLimited Code = "PROVIDER_RATE_LIMITED"

	// Network
	CodeNetworkTimeout     Code = "NETWORK_TIMEOUT"
	CodeNetworkUnreachable Code = "NETWORK_UNREACHABLE"

	// Tool execution
	CodeToolTimeout         Code = "TOOL_TIMEOUT"
	CodeToolExecutionFailed Code = "TOOL_EXECUTION_FAILED"
	CodeToolPermissionDenied Code = "TOOL_PERMISSION_DENIED"

	// Storage
	CodeDatabaseConnection  Code = "DATABASE_CONNECTION"
	CodeDatabaseQuery       Code = "DATABASE_QUERY"
	CodeDatabaseTransaction Code = "DATABASE_TRANSACTION"
	CodeDatabaseMigration   Code = "DATABASE_MIGRATION"
	CodeDatabaseCorruption  Code = "DATABASE_CORRUPTION"

	// Catch-all
	CodeInternal Code = "INTERNAL_ERROR"
	CodeUnknown  Code = "UNKNOWN_ERROR"
)

// Error is the unified error shape every loom component returns. Context
// carries small key/value diagnostics (tool name, session id, ...) for
// logging; it is not part of the identity used by Is/Unwrap.
type Error struct {
	Code        Code
	Message     string
	Context     map[string]any
	Cause       error
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Code, or a bare Code
// sentinel comparison via errors.Is(err, SomeCode) is not supported directly —
// callers compare codes with apperr.CodeOf instead. Is here only supports
// matching against another *Error to let errors.Is walk transformed chains.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return false
	}
	return e.Code == t.Code
}

// New builds an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around an existing cause, preserving it for Unwrap.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithContext returns a shallow copy of e with the given key/value merged
// into Context. Safe to chain: apperr.New(...).WithContext("tool", name).
func (e *Error) WithContext(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// WithRecoverable returns a shallow copy of e with Recoverable set.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	cp := *e
	cp.Recoverable = recoverable
	return &cp
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, and
// CodeUnknown otherwise.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
