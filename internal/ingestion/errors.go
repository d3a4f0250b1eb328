package ingestion

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited marks upstream throttling. It is never retried; the adapter
	// falls back to its last good data instead.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrStructure reports that the expected table or feed structure is absent.
	ErrStructure = errors.New("unexpected upstream structure")
)

// RateLimitError carries the upstream throttling response.
type RateLimitError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: status %d, retry after %v", e.URL, e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

func structureError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStructure, fmt.Sprintf(format, args...))
}
