// Package apperr defines the error kinds shared by every classwatch component.
// Callers wrap a kind with context via fmt.Errorf("...: %w", kind) and test it
// with errors.Is.
package apperr

import "errors"

var (
	// ErrValidationFailed marks missing or malformed required input. The
	// operation that returns it has not written anything.
	ErrValidationFailed = errors.New("validation failed")

	// ErrInvalidArgument marks a value outside a closed enumeration.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDeviceAccessFailed marks a camera that could not be acquired.
	ErrDeviceAccessFailed = errors.New("device access failed")

	// ErrInvalidState marks an operation requested from the wrong state,
	// e.g. capturing while monitoring is stopped.
	ErrInvalidState = errors.New("invalid state")
)
