// Package webhook implements the platform adapter contract over a generic
// JSON webhook endpoint. Each configured platform gets one client that
// posts formatted payloads, classifies responses into the delivery error
// taxonomy, and feeds platform-reported rate-limit state back to the
// limiter.
package webhook

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError represents a 429 response from a platform endpoint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string // Optional custom message
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// Retryable marks platform-reported rate limits as transient.
func (e *RateLimitError) Retryable() bool { return true }

// ClientError represents a 4xx platform rejection. Terminal: retrying the
// same payload cannot succeed.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// Retryable marks client rejections as terminal.
func (e *ClientError) Retryable() bool { return false }

// ServerError represents a 5xx platform failure. Transient.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Retryable marks server failures as transient.
func (e *ServerError) Retryable() bool { return true }

// IsPermanent reports whether the error is a terminal platform rejection
// that must never be retried.
func IsPermanent(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr)
}

// AsRateLimit extracts a rate limit error and its retry-after hint.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr, true
	}
	return nil, false
}
