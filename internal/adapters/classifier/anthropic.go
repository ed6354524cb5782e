package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicProvider completes prompts with the Anthropic messages API.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider constructs an Anthropic backed provider.
func NewAnthropicProvider(opts ...ProviderOption) (*AnthropicProvider, error) {
	cfg := newProviderConfig(defaultAnthropicModel, opts)
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrNoAPIKey)
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &AnthropicProvider{
		client:      anthropic.NewClient(clientOpts...),
		model:       cfg.model,
		temperature: cfg.temperature,
		maxTokens:   int64(cfg.maxTokens),
	}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
		Temperature: anthropic.Float(p.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: completion failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), nil
}
