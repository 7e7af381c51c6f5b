package queue

import "errors"

// ErrPermanent marks a send failure that must not be retried. Handlers wrap
// it together with the underlying cause.
var ErrPermanent = errors.New("permanent failure")

// RetryStrategy bounds the number of send attempts per message.
type RetryStrategy struct {
	MaxRetries int
}

// NewRetryStrategy creates a RetryStrategy allowing maxRetries attempts.
func NewRetryStrategy(maxRetries int) *RetryStrategy {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RetryStrategy{MaxRetries: maxRetries}
}

// ShouldRetry returns true if a message that has failed retryCount times has
// not exhausted its attempt budget.
func (r *RetryStrategy) ShouldRetry(retryCount int) bool {
	return retryCount < r.MaxRetries
}
