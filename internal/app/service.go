// Package service orchestrates repository scans and exposes the scan
// history and discovery feeds to the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/agentskan/internal/adapters/feeds"
	"github.com/okian/agentskan/internal/adapters/mq/queue"
	"github.com/okian/agentskan/internal/adapters/mq/worker"
	"github.com/okian/agentskan/internal/domain/ledger"
	"github.com/okian/agentskan/internal/domain/model"
	"github.com/okian/agentskan/internal/domain/reference"
	"github.com/okian/agentskan/internal/domain/scoring"
	"github.com/okian/agentskan/internal/domain/types"
	"github.com/okian/agentskan/pkg/logger"
	"github.com/okian/agentskan/pkg/metrics"
)

const (
	defaultWorkerCount    = 4
	defaultQueueSize      = 1024
	defaultPersistTimeout = 5 * time.Second
)

// MetadataSource fetches a repository snapshot.
type MetadataSource interface {
	Fetch(ctx context.Context, owner, repo string) (model.RepoMetadata, error)
}

// FlagAnalyzer raises content flags for README text.
type FlagAnalyzer interface {
	Analyze(ctx context.Context, readme string) ([]model.ContentFlag, error)
}

// Ledger is the scan history store.
type Ledger interface {
	Append(ctx context.Context, scan model.StoredScan) ledger.Receipt
	List(ctx context.Context, offset, limit int) (ledger.Page, error)
	LifetimeCount(ctx context.Context) int64
	Configured() bool
	Retention() int64
}

// AgentsSource lists launched agents.
type AgentsSource interface {
	Agents(ctx context.Context) (feeds.Snapshot[feeds.AgentList], error)
}

// TokensSource pages through token launches.
type TokensSource interface {
	Tokens(ctx context.Context, limit, offset int) (feeds.Snapshot[feeds.TokenList], error)
}

// Service implements the API dependencies for scanning.
type Service struct {
	mu sync.RWMutex

	meta     MetadataSource
	analyzer FlagAnalyzer
	ledger   Ledger
	agents   AgentsSource
	tokens   TokensSource

	persistMode    string
	workerCount    int
	queueSize      int
	persistTimeout time.Duration

	queue *queue.InMemoryQueue
	pool  *worker.Pool

	started bool
	logger  logger.Logger
}

// New constructs a Service. The ledger may be unconfigured; scans then
// complete with a not_persisted outcome.
func New(meta MetadataSource, led Ledger, opts ...Option) *Service {
	s := &Service{
		meta:           meta,
		ledger:         led,
		persistMode:    PersistSync,
		workerCount:    defaultWorkerCount,
		queueSize:      defaultQueueSize,
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start launches the persist workers when running in async mode.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.persistMode == PersistAsync {
		s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
		s.pool = worker.NewPool(s.workerCount, s.queue, s.ledger, worker.WithLogger(s.logger.Named("persist")))
		// Workers outlive request contexts; Stop drains them.
		s.pool.Start(context.WithoutCancel(ctx))
	}

	s.started = true
	s.logger.Info(ctx, "scan service started",
		logger.String("persistMode", s.persistMode),
		logger.Bool("ledgerConfigured", s.ledger.Configured()),
		logger.Bool("classifier", s.analyzer != nil),
	)
	return nil
}

// Stop drains queued scans into the ledger until ctx ends.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "persist queue not fully drained", logger.Error(err))
			return err
		}
	}
	s.logger.Info(ctx, "scan service stopped")
	return nil
}

// Scan runs one scan of ref: resolve the reference, fetch metadata, gather
// content flags, score, and record the result.
func (s *Service) Scan(ctx context.Context, ref string) (types.ScanResult, error) {
	start := time.Now()

	target, err := reference.Parse(ref)
	if err != nil {
		metrics.RecordScanFailure("invalid_reference")
		return types.ScanResult{}, err
	}

	meta, err := s.meta.Fetch(ctx, target.Owner, target.Repo)
	if err != nil {
		reason := "upstream"
		if errors.Is(err, model.ErrRepoNotFound) {
			reason = "not_found"
		}
		metrics.RecordScanFailure(reason)
		return types.ScanResult{}, err
	}

	flags := s.contentFlags(ctx, meta)

	res, err := scoring.Compute(meta, flags)
	if err != nil {
		metrics.RecordScanFailure("incomplete_metadata")
		return types.ScanResult{}, fmt.Errorf("%w: %w", model.ErrUpstream, err)
	}
	level := scoring.Classify(res.Score)

	stored := model.StoredScan{
		RepoURL:      target.URL(),
		RepoName:     meta.Name,
		Owner:        meta.Owner,
		Score:        res.Score,
		RiskLevel:    level,
		Stars:        meta.Stars,
		Forks:        meta.Forks,
		AgeInDays:    meta.AgeInDays,
		Contributors: meta.ContributorsCount,
		FlagsCount:   len(flags),
	}
	persistence := s.persist(ctx, stored)

	metrics.RecordScan(string(level), res.Score, time.Since(start))
	for _, f := range flags {
		metrics.RecordContentFlag(string(f.Severity))
	}
	s.logger.Info(ctx, "scan completed",
		logger.String("repo", target.String()),
		logger.Int("score", res.Score),
		logger.String("riskLevel", string(level)),
		logger.Int("flags", len(flags)),
		logger.String("persistence", string(persistence.Outcome)),
		logger.Duration("took", time.Since(start)),
	)

	return types.ScanResult{
		Score:       res.Score,
		RiskLevel:   level,
		Factors:     res.Factors,
		Flags:       flags,
		Repo:        meta.Summary(),
		RepoURL:     target.URL(),
		ScannedAt:   start.UTC(),
		Persistence: persistence,
	}, nil
}

// contentFlags returns the flags for meta. A repository without a README
// gets exactly the synthesised missing README flag. Classifier failures
// degrade to no flags.
func (s *Service) contentFlags(ctx context.Context, meta model.RepoMetadata) []model.ContentFlag { //nolint:gocritic // hugeParam
	if !meta.HasReadme {
		return []model.ContentFlag{model.MissingReadmeFlag()}
	}
	if s.analyzer == nil || strings.TrimSpace(meta.ReadmeContent) == "" {
		return []model.ContentFlag{}
	}

	flags, err := s.analyzer.Analyze(ctx, meta.ReadmeContent)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFlagAnalysisUnavailable, err)
		metrics.RecordFlagAnalysisFailure(failureReason(ctx, err))
		s.logger.Warn(ctx, "continuing without content flags",
			logger.String("repo", meta.Owner+"/"+meta.Name),
			logger.Error(err))
		return []model.ContentFlag{}
	}
	if flags == nil {
		flags = []model.ContentFlag{}
	}
	return flags
}

func failureReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func (s *Service) persist(ctx context.Context, scan model.StoredScan) types.Persistence { //nolint:gocritic // hugeParam
	p := s.persistOnce(ctx, scan)
	metrics.RecordPersistOutcome(string(p.Outcome))
	if p.Outcome == types.NotPersisted {
		s.logger.Warn(ctx, "scan not persisted",
			logger.String("repo", scan.Owner+"/"+scan.RepoName),
			logger.String("reason", p.Reason))
	}
	return p
}

func (s *Service) persistOnce(ctx context.Context, scan model.StoredScan) types.Persistence { //nolint:gocritic // hugeParam
	if !s.ledger.Configured() {
		return types.Persistence{Outcome: types.NotPersisted, Reason: ledger.ErrNotConfigured.Error()}
	}

	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()

	if s.persistMode == PersistAsync {
		if q == nil {
			return types.Persistence{Outcome: types.NotPersisted, Reason: "persist queue not started"}
		}
		if !q.Enqueue(ctx, scan) {
			return types.Persistence{Outcome: types.NotPersisted, Reason: "persist queue full"}
		}
		return types.Persistence{Outcome: types.Queued}
	}

	// The scan already succeeded; a client disconnect should not lose the record.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	receipt := s.ledger.Append(pctx, scan)
	if !receipt.Persisted() {
		reason := ErrPersistenceUnavailable.Error()
		if receipt.Err != nil {
			reason = fmt.Errorf("%w: %w", ErrPersistenceUnavailable, receipt.Err).Error()
		}
		return types.Persistence{Outcome: types.NotPersisted, Reason: reason}
	}
	return types.Persistence{Outcome: types.Persisted, ID: receipt.ID}
}

// ListScans returns one page of history, newest first.
func (s *Service) ListScans(ctx context.Context, offset, limit int) (types.ScanPage, error) {
	page, err := s.ledger.List(ctx, offset, limit)
	if err != nil {
		return types.ScanPage{}, err
	}
	scans := page.Entries
	if scans == nil {
		scans = []model.StoredScan{}
	}
	return types.ScanPage{Scans: scans, Total: page.Total, HasMore: page.HasMore}, nil
}

// LifetimeScanCount returns the number of scans ever recorded.
func (s *Service) LifetimeScanCount(ctx context.Context) int64 {
	return s.ledger.LifetimeCount(ctx)
}

// RecordScan appends a precomputed scan. The risk level must match the
// score's band.
func (s *Service) RecordScan(ctx context.Context, in types.ScanInput) (types.RecordReceipt, error) { //nolint:gocritic // hugeParam
	stored := in.Stored()
	if err := validateScan(stored); err != nil {
		return types.RecordReceipt{}, err
	}

	if !s.ledger.Configured() {
		metrics.RecordPersistOutcome(string(types.NotPersisted))
		return types.RecordReceipt{Message: "Scan recorded (ledger not configured)"}, nil
	}

	receipt := s.ledger.Append(ctx, stored)
	if !receipt.Persisted() {
		metrics.RecordPersistOutcome(string(types.NotPersisted))
		return types.RecordReceipt{}, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, receipt.Err)
	}
	metrics.RecordPersistOutcome(string(types.Persisted))
	return types.RecordReceipt{ID: receipt.ID, ScannedAt: receipt.CreatedAt}, nil
}

func validateScan(s model.StoredScan) error { //nolint:gocritic // hugeParam
	switch {
	case s.Owner == "":
		return fmt.Errorf("%w: missing owner", ErrInvalidScan)
	case s.RepoName == "":
		return fmt.Errorf("%w: missing repoName", ErrInvalidScan)
	case s.RepoURL == "":
		return fmt.Errorf("%w: missing repoUrl", ErrInvalidScan)
	case s.Score < scoring.MinScore || s.Score > scoring.MaxScore:
		return fmt.Errorf("%w: score %d out of range", ErrInvalidScan, s.Score)
	case s.RiskLevel != scoring.Classify(s.Score):
		return fmt.Errorf("%w: riskLevel %q does not match score %d", ErrInvalidScan, s.RiskLevel, s.Score)
	case s.Stars < 0 || s.Forks < 0 || s.AgeInDays < 0 || s.Contributors < 0 || s.FlagsCount < 0:
		return fmt.Errorf("%w: negative count", ErrInvalidScan)
	}
	return nil
}

// Agents returns the current agent listing.
func (s *Service) Agents(ctx context.Context) (feeds.AgentList, error) {
	if s.agents == nil {
		return feeds.AgentList{}, ErrFeedNotConfigured
	}
	snap, err := s.agents.Agents(ctx)
	if err != nil {
		return feeds.AgentList{}, err
	}
	return snap.Value, nil
}

// Tokens returns one page of token launches.
func (s *Service) Tokens(ctx context.Context, limit, offset int) (feeds.TokenList, error) {
	if s.tokens == nil {
		return feeds.TokenList{}, ErrFeedNotConfigured
	}
	snap, err := s.tokens.Tokens(ctx, limit, offset)
	if err != nil {
		return feeds.TokenList{}, err
	}
	return snap.Value, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":          s.started,
		"persistMode":      s.persistMode,
		"ledgerConfigured": s.ledger.Configured(),
		"retention":        s.ledger.Retention(),
		"classifier":       s.analyzer != nil,
	}
	if s.persistMode == PersistAsync {
		stats["workerCount"] = s.workerCount
		stats["queueSize"] = s.queueSize
		if s.queue != nil {
			stats["queueLength"] = s.queue.Len(ctx)
		}
	}
	if s.ledger.Configured() {
		total := s.ledger.LifetimeCount(ctx)
		stats["totalScans"] = total
		metrics.UpdateLedgerLifetime(total)
	}
	return stats
}
