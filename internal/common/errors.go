// Package common defines shared constants and sentinel errors used across
// the client layers of biru. Callers should use errors.Is / errors.As to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Lookup / transport errors.
	ErrNetwork        = errors.New("network error")
	ErrServerNotFound = errors.New("server not found")

	// ErrAuth is deliberately generic: it never carries credential or token detail.
	ErrAuth = errors.New("verification failed")

	// Session errors.
	ErrNoSession = errors.New("no session")

	// Workflow guard errors.
	ErrBusy         = errors.New("another operation is in progress")
	ErrCapacity     = errors.New("maximum number of handles reached")
	ErrNotAvailable = errors.New("handle is not available")
	ErrNotConfirmed = errors.New("registration not confirmed")

	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
)

// ValidationError reports input rejected locally before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError is a shorthand for &ValidationError{...}.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// OperationError wraps a failed register/switch/release call.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
