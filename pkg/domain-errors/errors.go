// Package domainerrors provides typed domain errors with stable codes.
//
// Services return these so handlers can translate them into HTTP responses
// without string matching. Stores return pkg/platform/sentinel errors instead;
// services wrap sentinels into domain errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a domain error.
type Code string

const (
	// CodeValidation covers bad enums, out-of-range values, and empty
	// required collections. Rejected before any write.
	CodeValidation Code = "validation_error"

	// CodeNotFound means the referenced entity does not exist, or a revoke
	// was attempted with no active consent to revoke.
	CodeNotFound Code = "not_found"

	// CodeConflict means the entity is in the wrong state for the requested
	// write (human review already set, dispute on a non-active attribute,
	// concurrent permission update lost the version race).
	CodeConflict Code = "conflict"

	// CodeStorage means persistence is unavailable. Operations that compute
	// then record must abort entirely on this code.
	CodeStorage Code = "storage_unavailable"

	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeInvalidInput Code = "invalid_input"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"
)

// Error is a domain error carrying a code, a safe message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match two domain errors by code and message, so tests
// can compare against a freshly constructed error.
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return e.Code == te.Code && (te.Message == "" || e.Message == te.Message)
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a domain code and message, preserving the cause
// for errors.Is/errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or any error in its chain) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost domain code, or CodeInternal for unknown errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost safe message, or empty for unknown errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
