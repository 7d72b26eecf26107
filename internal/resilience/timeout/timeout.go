// Package timeout bounds an operation with a hard deadline. When the
// deadline fires the operation's context is cancelled so it can release
// any resources it holds, and the caller gets a typed timeout error.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error indicates that an operation did not complete within its allotted
// duration. It is classified as retryable.
type Error struct {
	Op       string
	Duration time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("operation %q timed out after %v", e.Op, e.Duration)
	}
	return fmt.Sprintf("operation timed out after %v", e.Duration)
}

// Retryable marks the timeout as worth retrying.
func (e *Error) Retryable() bool {
	return true
}

// IsTimeout reports whether the error (possibly wrapped) is an operation
// timeout.
func IsTimeout(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// Do runs fn with a deadline of d. The function receives a derived context
// that is cancelled when the deadline fires or the parent is cancelled, so
// blocking work inside fn unwinds promptly.
//
// Returns fn's own result when it completes in time, an *Error when the
// deadline fires first, or the parent's error when the parent context is
// cancelled.
func Do(ctx context.Context, op string, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Error{Op: op, Duration: d}
		}
		return ctx.Err()
	}
}
