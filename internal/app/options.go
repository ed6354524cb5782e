package service

import (
	"time"

	"github.com/okian/agentskan/pkg/logger"
)

// Persist modes.
const (
	PersistSync  = "sync"
	PersistAsync = "async"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithAnalyzer sets the README classifier. Without one, scans only carry
// the synthesised missing README flag.
func WithAnalyzer(a FlagAnalyzer) Option {
	return func(s *Service) {
		s.analyzer = a
	}
}

// WithAgentsFeed sets the agent discovery feed.
func WithAgentsFeed(f AgentsSource) Option {
	return func(s *Service) {
		s.agents = f
	}
}

// WithTokensFeed sets the token launch feed.
func WithTokensFeed(f TokensSource) Option {
	return func(s *Service) {
		s.tokens = f
	}
}

// WithPersistMode selects inline (sync) or queued (async) ledger writes.
func WithPersistMode(mode string) Option {
	return func(s *Service) {
		if mode == PersistSync || mode == PersistAsync {
			s.persistMode = mode
		}
	}
}

// WithWorkerCount sets the number of persist workers in async mode.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the persist queue capacity in async mode.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithPersistTimeout bounds a single inline ledger write.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
