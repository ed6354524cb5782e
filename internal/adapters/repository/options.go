package repository

import (
	"time"

	"github.com/okian/agentskan/pkg/logger"
)

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// BadgerConfig holds configuration for a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration
	// GCDiscardRatio is the garbage ratio that triggers a value log rewrite.
	GCDiscardRatio float64
	// Logger receives badger's own log lines when set.
	Logger logger.Logger
}

// DefaultBadgerConfig returns durable defaults for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns a configuration suited to tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*redisOptions)

type redisOptions struct {
	password    string
	db          int
	tls         bool
	dialTimeout time.Duration
	opTimeout   time.Duration
}

// WithRedisPassword sets the AUTH password.
func WithRedisPassword(password string) RedisOption {
	return func(o *redisOptions) {
		o.password = password
	}
}

// WithRedisDB selects the logical database.
func WithRedisDB(db int) RedisOption {
	return func(o *redisOptions) {
		if db >= 0 {
			o.db = db
		}
	}
}

// WithRedisTLS enables TLS, as required by hosted Redis providers.
func WithRedisTLS(enabled bool) RedisOption {
	return func(o *redisOptions) {
		o.tls = enabled
	}
}

// WithRedisTimeouts sets the dial and per-operation timeouts.
func WithRedisTimeouts(dial, op time.Duration) RedisOption {
	return func(o *redisOptions) {
		if dial > 0 {
			o.dialTimeout = dial
		}
		if op > 0 {
			o.opTimeout = op
		}
	}
}
