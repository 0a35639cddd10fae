package spotify

import (
	"errors"
	"time"
)

// RetryPolicy bounds how long the client keeps retrying a transient failure.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BackoffMin is the delay before the first retry; each further retry
	// doubles it.
	BackoffMin time.Duration
	// BackoffMax caps the computed delay. A Retry-After signal from the
	// server overrides the cap.
	BackoffMax time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 4,
	BackoffMin:  1 * time.Second,
	BackoffMax:  30 * time.Second,
}

// retryState tracks one request through Pending -> Retrying(n) ->
// Resolved/Failed, keeping the failure policy separate from the I/O loop.
type retryState struct {
	policy  RetryPolicy
	attempt int // completed attempts
}

func (p RetryPolicy) newState() *retryState {
	return &retryState{policy: p}
}

// Next records a failed attempt and reports whether the request should be
// retried, and after what delay. The delay honors a server Retry-After
// signal even when it exceeds the backoff cap.
func (s *retryState) Next(err error) (time.Duration, bool) {
	s.attempt++
	if !isTransient(err) {
		return 0, false
	}
	if s.attempt >= s.policy.MaxAttempts {
		return 0, false
	}

	delay := s.policy.BackoffMin << (s.attempt - 1)
	if s.policy.BackoffMax > 0 && delay > s.policy.BackoffMax {
		delay = s.policy.BackoffMax
	}

	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > delay {
		delay = rl.RetryAfter
	}
	return delay, true
}

// Attempts returns the number of completed attempts.
func (s *retryState) Attempts() int {
	return s.attempt
}
