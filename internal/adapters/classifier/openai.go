package classifier

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIProvider completes prompts with the OpenAI chat API in JSON mode.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider constructs an OpenAI backed provider.
func NewOpenAIProvider(opts ...ProviderOption) (*OpenAIProvider, error) {
	cfg := newProviderConfig(defaultOpenAIModel, opts)
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
	}
	oc := openai.DefaultConfig(cfg.apiKey)
	if cfg.baseURL != "" {
		oc.BaseURL = cfg.baseURL
	}
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.model,
		temperature: float32(cfg.temperature),
		maxTokens:   cfg.maxTokens,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:    p.temperature,
		MaxTokens:      p.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", fmt.Errorf("openai: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
