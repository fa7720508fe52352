package openai

import (
	"fmt"
	"net/http"
	"time"
)

// ConnectionError means the request never produced an HTTP response.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return "openai connection error: " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// MalformedResponseError is a 2xx response whose body is not a chat completion envelope.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string { return "openai malformed response: " + e.Err.Error() }
func (e *MalformedResponseError) Unwrap() error { return e.Err }

// TimeoutError means the per-call deadline elapsed before a response arrived.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("openai request timed out after %s", e.Timeout)
}
func (e *TimeoutError) Unwrap() error { return e.Err }

// RateLimitError is a 429 response.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("openai rate limited (retry after %s): %s", e.RetryAfter, e.Body)
}

func (e *RateLimitError) HTTPStatusCode() int { return http.StatusTooManyRequests }

// APIError is any other non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}
