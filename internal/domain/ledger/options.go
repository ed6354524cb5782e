package ledger

import (
	"time"

	"github.com/okian/agentskan/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithRetention sets how many records are kept.
func WithRetention(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.retention = int64(n)
		}
	}
}

// WithClock replaces the wall clock used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}
