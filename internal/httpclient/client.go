package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "indevolt-ems/1.0"

// TransportError reports a request that never completed: connection refused,
// DNS failure, or timeout. These are the only failures worth retrying.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a completed exchange that came back with a non-2xx
// status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

type userAgentTransport struct {
	transport http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone so shared requests keep their original headers.
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	return t.transport.RoundTrip(req)
}

// Client wraps http.Client with bounded retry for transport failures.
// Non-2xx responses and decode failures are never retried.
type Client struct {
	http     *http.Client
	attempts int
	backoff  time.Duration
}

// New returns a client with the given per-request timeout and the default
// retry policy of 3 attempts with 500ms backoff between them.
func New(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Transport: &userAgentTransport{transport: http.DefaultTransport},
			Timeout:   timeout,
		},
		attempts: 3,
		backoff:  500 * time.Millisecond,
	}
}

// WithRetry overrides the retry policy. attempts counts the first try.
func (c *Client) WithRetry(attempts int, backoff time.Duration) *Client {
	if attempts < 1 {
		attempts = 1
	}
	c.attempts = attempts
	c.backoff = backoff
	return c
}

// Do issues the request, retrying transport failures up to the configured
// attempt count. The returned error is a *TransportError once retries are
// exhausted.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			select {
			case <-req.Context().Done():
				return nil, &TransportError{Err: req.Context().Err()}
			case <-time.After(c.backoff):
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, &TransportError{Err: err}
				}
				req.Body = body
			}
		}
		resp, err := c.http.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			break
		}
	}
	return nil, &TransportError{Err: lastErr}
}

// GetJSON performs one GET against url and decodes a 2xx JSON body into
// target. It returns *TransportError, *StatusError, or a wrapped decode
// error.
func (c *Client) GetJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("fetch %s: %w", url, &StatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(body)),
		})
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode JSON from %s: %w", url, err)
	}
	return nil
}
