package classifier

import (
	"context"
	"fmt"
)

// Provider runs one chat completion and returns the raw assistant text.
type Provider interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ProviderOption configures a Provider.
type ProviderOption func(*providerConfig)

type providerConfig struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	maxRetries  int
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) ProviderOption {
	return func(c *providerConfig) {
		c.apiKey = key
	}
}

// WithModel overrides the provider's default model.
func WithModel(model string) ProviderOption {
	return func(c *providerConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL points the provider at a proxy or test server.
func WithBaseURL(u string) ProviderOption {
	return func(c *providerConfig) {
		c.baseURL = u
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ProviderOption {
	return func(c *providerConfig) {
		if t >= 0 {
			c.temperature = t
		}
	}
}

// WithMaxTokens bounds the response length.
func WithMaxTokens(n int) ProviderOption {
	return func(c *providerConfig) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithMaxRetries sets the SDK retry budget where supported.
func WithMaxRetries(n int) ProviderOption {
	return func(c *providerConfig) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func newProviderConfig(model string, opts []ProviderOption) providerConfig {
	cfg := providerConfig{
		model:       model,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		maxRetries:  defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewProvider builds the named provider.
func NewProvider(name string, opts ...ProviderOption) (Provider, error) {
	switch name {
	case ProviderOpenAI:
		return NewOpenAIProvider(opts...)
	case ProviderAnthropic:
		return NewAnthropicProvider(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
