package feeds

import (
	"net/http"
	"time"

	"github.com/okian/agentskan/pkg/logger"
)

// Option configures a feed client.
type Option func(*config)

type config struct {
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration
	clock      func() time.Time
	log        logger.Logger
}

// WithBaseURL overrides the upstream origin.
func WithBaseURL(u string) Option {
	return func(c *config) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTTL sets the snapshot lifetime.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock injects the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}

// WithLogger sets the feed logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

func newConfig(baseURL, name string, opts []Option) config {
	c := config{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ttl:        DefaultTTL,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.log == nil {
		c.log = logger.Get().Named(name)
	}
	return c
}
