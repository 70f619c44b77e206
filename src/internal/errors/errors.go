// Package errors provides domain-specific error types for hairpin.
//
// Errors carry a code which decides how far they propagate: a fatal
// configuration error aborts the whole run, while degraded identities,
// idempotency conflicts and proxy reload failures are isolated and reported.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a category of error that can occur in the application.
type ErrorCode string

const (
	// ErrCodeConfig indicates a configuration file that cannot be loaded.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeValidation indicates a configuration that failed validation.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeFatal indicates the uplink is missing or kernel network state
	// cannot be mutated (insufficient privilege). Aborts the run.
	ErrCodeFatal ErrorCode = "FATAL_CONFIGURATION"

	// ErrCodeDegraded isolates a single identity (lease timeout, interface race).
	ErrCodeDegraded ErrorCode = "IDENTITY_DEGRADED"

	// ErrCodeConflict indicates live kernel state that disagrees with the
	// desired state and must be reconciled by hand.
	ErrCodeConflict ErrorCode = "IDEMPOTENCY_CONFLICT"

	// ErrCodeProxyReload indicates the proxy did not accept a reload signal.
	ErrCodeProxyReload ErrorCode = "PROXY_RELOAD"

	// ErrCodeNetwork indicates a kernel network operation failed.
	ErrCodeNetwork ErrorCode = "NETWORK_ERROR"

	// ErrCodeBusy indicates another run holds the run lock.
	ErrCodeBusy ErrorCode = "BUSY"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error represents a domain-specific error with an error code and optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks by code.
var (
	ErrFatal       = &Error{Code: ErrCodeFatal}
	ErrDegraded    = &Error{Code: ErrCodeDegraded}
	ErrConflict    = &Error{Code: ErrCodeConflict}
	ErrProxyReload = &Error{Code: ErrCodeProxyReload}
	ErrBusy        = &Error{Code: ErrCodeBusy}
)

// New creates a new domain error with the specified code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, cause error) *Error {
	return Wrap(ErrCodeConfig, message, cause)
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, cause error) *Error {
	return Wrap(ErrCodeValidation, message, cause)
}

// NewFatalError creates an error that aborts the entire run.
func NewFatalError(message string, cause error) *Error {
	return Wrap(ErrCodeFatal, message, cause)
}

// NewDegradedError creates an error that isolates one identity.
func NewDegradedError(message string, cause error) *Error {
	return Wrap(ErrCodeDegraded, message, cause)
}

// NewConflictError creates an idempotency conflict error.
func NewConflictError(message string, cause error) *Error {
	return Wrap(ErrCodeConflict, message, cause)
}

// NewProxyReloadError creates a proxy reload error.
func NewProxyReloadError(message string, cause error) *Error {
	return Wrap(ErrCodeProxyReload, message, cause)
}

// NewNetworkError creates a new network operation error.
func NewNetworkError(message string, cause error) *Error {
	return Wrap(ErrCodeNetwork, message, cause)
}

// IsFatal reports whether err aborts the run.
func IsFatal(err error) bool {
	return stderrors.Is(err, ErrFatal)
}

// IsConflict reports whether err is an idempotency conflict.
func IsConflict(err error) bool {
	return stderrors.Is(err, ErrConflict)
}

// IsDegraded reports whether err degrades a single identity.
func IsDegraded(err error) bool {
	return stderrors.Is(err, ErrDegraded)
}

// CodeOf returns the code of the outermost *Error in the chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}
