package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/maauso/reelcard-api/internal/failure"
)

// Static errors for HTTP fetches.
var (
	// ErrServerError is returned when the origin answers with a 5xx status.
	ErrServerError = errors.New("fetch: server error")
	// ErrRateLimited is returned when the origin answers with 429.
	ErrRateLimited = errors.New("fetch: rate limited")
	// ErrRequestFailed is returned for other non-2xx statuses.
	ErrRequestFailed = errors.New("fetch: request failed")
)

// HTTPFetcher downloads http(s) references with retries on transient failures.
type HTTPFetcher struct {
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	maxBytes    int64
	userAgent   string
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.baseBackoff = d
	}
}

// WithMaxBytes bounds the size of a downloaded source.
func WithMaxBytes(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxBytes = n
	}
}

// NewHTTPFetcher creates a new HTTPFetcher.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  2,
		baseBackoff: 500 * time.Millisecond,
		maxBytes:    DefaultMaxBytes,
		userAgent:   "reelcard-api/1.0",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads ref. 404 and 410 responses are reported as not found.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	var lastErr error
	backoff := f.baseBackoff

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &failure.FetchError{Ref: ref, Err: fmt.Errorf("context cancelled: %w", ctx.Err())}
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		data, err := f.get(ctx, ref)
		if err == nil {
			return data, nil
		}

		// Check if error is retryable
		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, &failure.FetchError{Ref: ref, Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// get performs a single download.
func (f *HTTPFetcher) get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, &failure.FetchError{Ref: ref, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &failure.FetchError{Ref: ref, Err: err}
		}
		return nil, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &failure.FetchError{Ref: ref, NotFound: true, Err: fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode)}
	case resp.StatusCode >= 500:
		// 5xx errors are retryable
		return nil, &retryableError{err: fmt.Errorf("%w %d", ErrServerError, resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &retryableError{err: ErrRateLimited}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &failure.FetchError{Ref: ref, Err: fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode)}
	}

	data, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, &failure.FetchError{Ref: ref, Err: err}
		}
		return nil, &retryableError{err: fmt.Errorf("read response: %w", err)}
	}
	return data, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
