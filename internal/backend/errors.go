package backend

import (
	"errors"
	"fmt"
)

// Category is the normalized outcome taxonomy for backend responses.
type Category string

const (
	// CategoryNotReady covers "no content" and "not found": the record does
	// not exist yet. Never an error for callers, never retried.
	CategoryNotReady Category = "not_ready"

	// CategoryAuth covers 401/403: the session is missing or expired.
	CategoryAuth Category = "authentication"

	// CategoryValidation covers other 4xx responses.
	CategoryValidation Category = "validation"

	// CategoryTransient covers 5xx responses and network failures.
	CategoryTransient Category = "transient"

	// CategoryBadData covers unparseable response bodies.
	CategoryBadData Category = "bad_data"
)

// CallError wraps a classified backend failure.
type CallError struct {
	Category   Category
	Operation  string
	Status     int
	Code       string // business error code from the response body, if any
	Message    string
	Underlying error
	Retryable  bool
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("backend %s [%s]", e.Operation, e.Category)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Code != "" {
		msg += " code=" + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error {
	return e.Underlying
}

func newCallError(category Category, op string, status int, underlying error) *CallError {
	return &CallError{
		Category:   category,
		Operation:  op,
		Status:     status,
		Underlying: underlying,
		Retryable:  category == CategoryTransient,
	}
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// CategoryOf extracts the category of err. Unclassified errors are transient.
func CategoryOf(err error) Category {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryTransient
}

// IsNotReady reports whether err means "nothing there yet".
func IsNotReady(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Category == CategoryNotReady
}

// BusinessCode returns the backend business error code carried by err.
func BusinessCode(err error) string {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
