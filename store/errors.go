package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned by Put when the payload exceeds the
// store's documented maximum.
var ErrPayloadTooLarge = errors.New("store: payload exceeds maximum size")

// Error classifies a failed store operation as transient (worth retrying)
// or permanent. Implementations wrap their native errors with Transient or
// Permanent; the transfer layer bases its retry decision on IsTransient.
type Error struct {
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("store: %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable store failure.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable store failure.
func Permanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Transient: false, Err: err}
}

// IsTransient reports whether err is classified as retryable. Context
// cancellation is never retryable; unclassified errors default to
// permanent so an unknown failure cannot loop the retry policy.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *Error
	if errors.As(err, &se) {
		return se.Transient
	}

	return false
}
