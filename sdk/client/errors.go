package client

import (
	"fmt"
	"time"
)

// APIError is a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// ThrottleError signals a rate-limited response carrying the server's
// Retry-After hint. The retry loop honors the hint instead of its own
// backoff.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled, retry after %s: %v", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
