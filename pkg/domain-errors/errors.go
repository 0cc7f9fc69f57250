// Package domainerrors carries coded errors across service boundaries so the
// transport layer can translate them without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeUnauthorized covers a missing or expired auth session. Fatal to the
	// current operation; the user has to restart the process.
	CodeUnauthorized Code = "unauthorized"
	// CodeValidation covers 4xx rejections the user can fix and resubmit.
	CodeValidation Code = "validation_error"
	// CodeBadRequest covers malformed input at the API edge.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound covers unknown steps, kinds or journeys.
	CodeNotFound Code = "not_found"
	// CodeConflict covers operations refused by the current state.
	CodeConflict Code = "conflict"
	// CodeUnavailable covers transient failures that exhausted their retries.
	CodeUnavailable Code = "unavailable"
	// CodeTimeout covers verification sessions that ran out of budget.
	CodeTimeout Code = "timeout"
	// CodeMismatch covers identity disagreements that need remediation.
	CodeMismatch Code = "identity_mismatch"
	// CodeNotReady covers a wizard that has not settled enough checkpoints.
	CodeNotReady Code = "not_ready"
	// CodeInternal covers everything else.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// Is reports whether err carries a domain error.
func Is(err error) bool {
	var de *Error
	return errors.As(err, &de)
}

// CodeOf returns the outermost code in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Retryable reports whether a user-facing retry makes sense for err.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeUnauthorized, CodeBadRequest, CodeNotFound:
		return false
	default:
		return true
	}
}
