package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds retries of transient fetch failures.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultRetryPolicy allows a single retry of a transient upstream failure.
// Rate limiting and timeouts are never retried; they take the fallback path.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     1,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// RetryableError marks a transient failure: a network error or a 5xx.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err wraps a RetryableError.
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return err != nil && errors.As(err, &retryable)
}

// Retry calls fn until it succeeds, returns an error IsRetryable rejects, or
// the policy's retries are spent. A RetryAfter hint replaces the computed
// backoff but never exceeds MaxBackoff.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		if attempt >= policy.MaxRetries {
			return fmt.Errorf("max retries exceeded (%d): %w", policy.MaxRetries, err)
		}

		wait := backoffFor(policy, attempt, err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// backoffFor honors the error's RetryAfter hint, capped at MaxBackoff.
func backoffFor(policy RetryPolicy, attempt int, err error) time.Duration {
	var retryErr *RetryableError
	if errors.As(err, &retryErr) && retryErr.RetryAfter > 0 {
		if policy.MaxBackoff > 0 && retryErr.RetryAfter > policy.MaxBackoff {
			return policy.MaxBackoff
		}
		return retryErr.RetryAfter
	}
	return calculateBackoff(policy, attempt)
}

// calculateBackoff is InitialBackoff * BackoffFactor^attempt, capped at
// MaxBackoff, with up to 10% jitter either way.
func calculateBackoff(policy RetryPolicy, attempt int) time.Duration {
	backoff := float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt))
	if ceiling := float64(policy.MaxBackoff); ceiling > 0 && backoff > ceiling {
		backoff = ceiling
	}

	d := time.Duration(backoff)
	if policy.Jitter {
		d += time.Duration(float64(d) * 0.1 * (2*rand.Float64() - 1))
	}
	return d
}

func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// NewRetryableErrorWithDelay carries an upstream Retry-After hint.
func NewRetryableErrorWithDelay(err error, delay time.Duration) error {
	return &RetryableError{Err: err, RetryAfter: delay}
}
