package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/agentskan/internal/adapters/classifier"
	"github.com/okian/agentskan/internal/adapters/feeds"
	"github.com/okian/agentskan/internal/adapters/github"
	"github.com/okian/agentskan/internal/adapters/http/api"
	"github.com/okian/agentskan/internal/adapters/http/site"
	"github.com/okian/agentskan/internal/adapters/http/swagger"
	"github.com/okian/agentskan/internal/adapters/repository"
	service "github.com/okian/agentskan/internal/app"
	"github.com/okian/agentskan/internal/config"
	"github.com/okian/agentskan/internal/domain/ledger"
	"github.com/okian/agentskan/pkg/logger"
)

// openStore returns the ledger backend selected by cfg. A nil store with a
// nil error means the ledger is switched off.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	var (
		store repository.Store
		err   error
	)
	switch cfg.LedgerBackend {
	case config.LedgerNone:
		return nil, nil
	case config.LedgerMemory:
		store = repository.NewMemoryStore(ctx)
	case config.LedgerBadger:
		bcfg := repository.DefaultBadgerConfig(cfg.BadgerPath)
		if cfg.BadgerInMemory {
			bcfg = repository.InMemoryBadgerConfig()
		}
		bcfg.Logger = logger.Named("badger")
		store, err = repository.OpenBadgerStore(bcfg)
	case config.LedgerRedis:
		var rs *repository.RedisStore
		rs, err = repository.NewRedisStore(cfg.RedisAddr,
			repository.WithRedisPassword(cfg.RedisPassword),
			repository.WithRedisDB(cfg.RedisDB),
		)
		if err == nil {
			if err = rs.Ping(ctx); err != nil {
				_ = rs.Close()
			}
		}
		store = rs
	default:
		return nil, fmt.Errorf("%w: unknown ledger_backend %q", config.ErrInvalidConfig, cfg.LedgerBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s ledger store: %w", cfg.LedgerBackend, err)
	}
	return repository.Instrument(cfg.LedgerBackend, store), nil
}

// newAnalyzer builds the README classifier. It returns nil when the provider
// is disabled or has no key; scans then carry no content flags.
func newAnalyzer(ctx context.Context, cfg *config.Config, log logger.Logger) *classifier.Analyzer {
	if cfg.ClassifierProvider == config.ClassifierNone {
		return nil
	}
	key := cfg.ClassifierAPIKey()
	if key == "" {
		log.Warn(ctx, "classifier disabled: no API key", logger.String("provider", cfg.ClassifierProvider))
		return nil
	}
	p, err := classifier.NewProvider(cfg.ClassifierProvider,
		classifier.WithAPIKey(key),
		classifier.WithModel(cfg.ClassifierModel),
		classifier.WithBaseURL(cfg.ClassifierBaseURL),
	)
	if err != nil {
		log.Warn(ctx, "classifier disabled", logger.Error(err))
		return nil
	}
	return classifier.NewAnalyzer(p,
		classifier.WithTimeout(cfg.ClassifierTimeout),
		classifier.WithLogger(log.Named("classifier")),
	)
}

// newService wires the scan pipeline over store.
func newService(ctx context.Context, cfg *config.Config, store repository.Store, log logger.Logger) (*service.Service, error) {
	gh, err := github.New(
		github.WithToken(cfg.GitHubToken),
		github.WithBaseURL(cfg.GitHubBaseURL),
		github.WithTimeout(cfg.GitHubTimeout),
		github.WithLogger(log.Named("github")),
	)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}

	led := ledger.New(store,
		ledger.WithRetention(cfg.LedgerRetention),
		ledger.WithLogger(log.Named("ledger")),
	)

	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithPersistMode(cfg.PersistMode),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithAgentsFeed(feeds.NewAgentsFeed(
			feeds.WithBaseURL(cfg.AgentsBaseURL),
			feeds.WithTTL(cfg.FeedTTL),
			feeds.WithLogger(log.Named("feeds")),
		)),
		service.WithTokensFeed(feeds.NewTokensFeed(
			feeds.WithBaseURL(cfg.TokensBaseURL),
			feeds.WithTTL(cfg.FeedTTL),
			feeds.WithLogger(log.Named("feeds")),
		)),
	}
	if a := newAnalyzer(ctx, cfg, log); a != nil {
		opts = append(opts, service.WithAnalyzer(a))
	}
	return service.New(gh, led, opts...), nil
}

// newHandler mounts every route on a fresh mux.
func newHandler(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithMaxScanLimit(cfg.MaxScanLimit),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)
	site.Register(ctx, mux)
	return api.RequestIDMiddleware(mux)
}
