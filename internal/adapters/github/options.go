package github

import (
	"net/http"
	"time"

	"github.com/okian/agentskan/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithToken authenticates requests. Anonymous requests share a much lower
// rate limit.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		c.baseURL = raw
	}
}

// WithTimeout bounds each metadata fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient sets the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClock replaces the clock used to compute ages.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRecentWindow sets how far back commits count as recent.
func WithRecentWindow(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.recentWindow = d
		}
	}
}
