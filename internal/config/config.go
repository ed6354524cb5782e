// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"fmt"
	"time"
)

// Ledger backends.
const (
	LedgerMemory = "memory"
	LedgerBadger = "badger"
	LedgerRedis  = "redis"
	LedgerNone   = "none"
)

// Classifier providers. ClassifierNone disables README analysis.
const (
	ClassifierOpenAI    = "openai"
	ClassifierAnthropic = "anthropic"
	ClassifierNone      = "none"
)

// Persist modes.
const (
	PersistSync  = "sync"
	PersistAsync = "async"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// LedgerBackend selects where scan history lives.
	LedgerBackend string `koanf:"ledger_backend"`

	// LedgerRetention is the number of scans kept in history.
	LedgerRetention int `koanf:"ledger_retention"`

	BadgerPath     string `koanf:"badger_path"`
	BadgerInMemory bool   `koanf:"badger_in_memory"`

	// RedisAddr accepts host:port or a redis:// or rediss:// URL.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// PersistMode is sync (append inline) or async (queue and workers).
	PersistMode string `koanf:"persist_mode"`

	// QueueSize bounds the async persist queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of async persist workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxScanLimit caps GET /api/scans?limit.
	MaxScanLimit int `koanf:"max_scan_limit"`

	GitHubToken   string        `koanf:"github_token"`
	GitHubBaseURL string        `koanf:"github_base_url"`
	GitHubTimeout time.Duration `koanf:"github_timeout"`

	ClassifierProvider string        `koanf:"classifier_provider"`
	ClassifierModel    string        `koanf:"classifier_model"`
	ClassifierBaseURL  string        `koanf:"classifier_base_url"`
	ClassifierTimeout  time.Duration `koanf:"classifier_timeout"`
	OpenAIAPIKey       string        `koanf:"openai_api_key"`
	AnthropicAPIKey    string        `koanf:"anthropic_api_key"`

	FeedTTL       time.Duration `koanf:"feed_ttl"`
	AgentsBaseURL string        `koanf:"agents_base_url"`
	TokensBaseURL string        `koanf:"tokens_base_url"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       90 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		LedgerBackend:      LedgerMemory,
		LedgerRetention:    1000,
		BadgerPath:         "data/ledger",
		PersistMode:        PersistSync,
		QueueSize:          1024,
		WorkerCount:        4,
		MaxScanLimit:       100,
		GitHubTimeout:      15 * time.Second,
		ClassifierProvider: ClassifierOpenAI,
		ClassifierTimeout:  30 * time.Second,
		FeedTTL:            5 * time.Minute,
	}
}

// ClassifierAPIKey returns the key for the selected provider.
func (c *Config) ClassifierAPIKey() string {
	switch c.ClassifierProvider {
	case ClassifierOpenAI:
		return c.OpenAIAPIKey
	case ClassifierAnthropic:
		return c.AnthropicAPIKey
	default:
		return ""
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	case !oneOf(c.LedgerBackend, LedgerMemory, LedgerBadger, LedgerRedis, LedgerNone):
		return fmt.Errorf("%w: unknown ledger_backend %q", ErrInvalidConfig, c.LedgerBackend)
	case c.LedgerBackend == LedgerBadger && c.BadgerPath == "" && !c.BadgerInMemory:
		return fmt.Errorf("%w: badger_path is required for the badger backend", ErrInvalidConfig)
	case c.LedgerBackend == LedgerRedis && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr is required for the redis backend", ErrInvalidConfig)
	case !oneOf(c.PersistMode, PersistSync, PersistAsync):
		return fmt.Errorf("%w: unknown persist_mode %q", ErrInvalidConfig, c.PersistMode)
	case !oneOf(c.ClassifierProvider, ClassifierOpenAI, ClassifierAnthropic, ClassifierNone):
		return fmt.Errorf("%w: unknown classifier_provider %q", ErrInvalidConfig, c.ClassifierProvider)
	case c.LedgerRetention < 1:
		return fmt.Errorf("%w: ledger_retention must be positive", ErrInvalidConfig)
	case c.MaxScanLimit < 1:
		return fmt.Errorf("%w: max_scan_limit must be positive", ErrInvalidConfig)
	case c.QueueSize < 1 || c.WorkerCount < 1:
		return fmt.Errorf("%w: queue_size and worker_count must be positive", ErrInvalidConfig)
	case c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: server timeouts must be positive", ErrInvalidConfig)
	case c.GitHubTimeout <= 0 || c.ClassifierTimeout <= 0 || c.FeedTTL <= 0:
		return fmt.Errorf("%w: upstream timeouts and feed_ttl must be positive", ErrInvalidConfig)
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
