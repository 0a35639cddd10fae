package spotify

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Sentinel errors.
var (
	// ErrAuth is returned when the API rejects the client credentials.
	// It is fatal for the whole run.
	ErrAuth = errors.New("authentication rejected")

	// ErrBadRequest is returned for requests the API reports as
	// malformed. Retrying an identical request cannot succeed.
	ErrBadRequest = errors.New("malformed request")

	// ErrExhaustedRetries is returned after a transient failure survived
	// every allowed attempt.
	ErrExhaustedRetries = errors.New("retries exhausted")

	// ErrBatchTooLarge is returned when a caller submits more identifiers
	// than the endpoint accepts in one request.
	ErrBatchTooLarge = errors.New("batch exceeds API limit")
)

// RateLimitError reports a 429 response and the delay the server asked for.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// APIError is a non-2xx response outside the auth and rate-limit cases.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
}

// isTransient reports whether err is worth retrying: rate limiting, server
// errors, and network timeouts. Auth and bad-request errors are not.
func isTransient(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
