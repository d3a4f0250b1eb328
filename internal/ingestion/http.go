package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultHTTPTimeout = 20 * time.Second
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBodyBytes       = 10 << 20
)

// httpFetcher downloads feeds and classifies failures: throttling becomes a
// RateLimitError, transient network and 5xx failures become RetryableError,
// and timeouts stay plain so they are not retried.
type httpFetcher struct {
	client    *http.Client
	userAgent string
}

func newHTTPFetcher(client *http.Client, timeout time.Duration, userAgent string) *httpFetcher {
	if client == nil {
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &httpFetcher{client: client, userAgent: userAgent}
}

func (f *httpFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("http get %s: %w", url, err)
		}
		return nil, NewRetryableError(fmt.Errorf("http get %s: %w", url, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &RateLimitError{
			URL:        url,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		statusErr := fmt.Errorf("%s: unexpected status code: %d", url, resp.StatusCode)
		if delay := retryAfter(resp.Header.Get("Retry-After")); delay > 0 {
			return nil, NewRetryableErrorWithDelay(statusErr, delay)
		}
		return nil, NewRetryableError(statusErr)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s: unexpected status code: %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
