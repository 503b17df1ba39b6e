package lookoutstream

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient provides a custom HTTP client for the stream connection.
// The client must not enforce an overall request timeout; the stream body
// stays open indefinitely.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithBaseURL overrides the API host, e.g. for a gateway or test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithLogger sets the structured logger for session diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBackoff sets the reconnect backoff bounds. The delay grows
// exponentially from base and never exceeds max.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) { c.backoff = newBackoffPolicy(base, max) }
}

// WithMaxAttempts sets how many consecutive failed connection attempts are
// tolerated before the run terminates.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}
