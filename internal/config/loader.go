package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment names.
const (
	EnvPrefix     = "AGENTSKAN_"
	EnvConfigFile = "AGENTSKAN_CONFIG"
)

// Well-known variables read when the prefixed ones are absent.
var fallbackEnv = map[string]string{
	"github_token":      "GITHUB_TOKEN",
	"openai_api_key":    "OPENAI_API_KEY",
	"anthropic_api_key": "ANTHROPIC_API_KEY",
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if AGENTSKAN_CONFIG is set
//  3. env (prefix AGENTSKAN_)
//
// GITHUB_TOKEN, OPENAI_API_KEY and ANTHROPIC_API_KEY fill their fields
// when neither the file nor a prefixed variable set them.
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// AGENTSKAN_QUEUE_SIZE -> queue_size; underscores are kept to match
	// the flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	applyFallbacks(k, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFallbacks(k *koanf.Koanf, cfg *Config) {
	for key, name := range fallbackEnv {
		if k.Exists(key) {
			continue
		}
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		switch key {
		case "github_token":
			cfg.GitHubToken = v
		case "openai_api_key":
			cfg.OpenAIAPIKey = v
		case "anthropic_api_key":
			cfg.AnthropicAPIKey = v
		}
	}
}
