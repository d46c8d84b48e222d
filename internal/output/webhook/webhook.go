package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	defaultBackoff = time.Second
	maxRetries     = 3
	maxErrorBody   = 512
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures a webhook Output.
type Option func(*Output)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) { o.headers = h }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.client.Timeout = d }
}

// WithBackoff sets the delay before the first retry; it doubles on each
// further attempt. Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(o *Output) { o.backoff = d }
}

// Output POSTs each appended blob to an HTTP endpoint as text/plain.
// Retries on 5xx with exponential backoff, and on 429 after the
// Retry-After delay when the server sends one.
type Output struct {
	client  *http.Client
	url     string
	headers map[string]string
	backoff time.Duration
}

// New creates a webhook output targeting the given URL.
func New(url string, opts ...Option) *Output {
	o := &Output{
		client:  &http.Client{Timeout: defaultTimeout},
		url:     url,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Append sends blob in a single POST.
func (o *Output) Append(ctx context.Context, blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	return o.postWithRetry(ctx, blob)
}

// Close is a no-op; every Append is sent synchronously.
func (o *Output) Close() error { return nil }

// postWithRetry sends the body via HTTP POST, retrying on 429 and 5xx.
func (o *Output) postWithRetry(ctx context.Context, body []byte) error {
	var lastErr *StatusError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(o.delay(attempt, lastErr))
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("webhook: %w", ctx.Err())
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		for k, v := range o.headers {
			req.Header.Set(k, v)
		}

		resp, err := o.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr.retryAfter = resp.Header.Get("Retry-After")
		case resp.StatusCode >= 500:
		default:
			return lastErr
		}
	}
	return lastErr
}

// delay returns the wait before a retry: the server's Retry-After for a
// 429 when it gives one in seconds, otherwise exponential backoff.
func (o *Output) delay(attempt int, last *StatusError) time.Duration {
	if last != nil && last.retryAfter != "" {
		if secs, err := strconv.Atoi(last.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return o.backoff << (attempt - 1)
}
