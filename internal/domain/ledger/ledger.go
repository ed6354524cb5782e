// Package ledger keeps the bounded, most-recent-first history of completed
// scans on top of a repository.Store.
//
// Every append writes the record, indexes it by insertion time and bumps a
// lifetime counter. Once the index holds more than the retention limit the
// oldest entries are evicted. The lifetime counter is never decremented, so
// it can exceed the number of retrievable records.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/okian/agentskan/internal/adapters/repository"
	"github.com/okian/agentskan/internal/domain/model"
	"github.com/okian/agentskan/pkg/logger"
	"github.com/okian/agentskan/pkg/metrics"
)

// Store keys.
const (
	IndexKey     = "scans"
	CounterKey   = "scan_count"
	RecordPrefix = "scan:"

	DefaultRetention = 1000
)

// Outcome describes what happened to an appended scan.
type Outcome string

// Append outcomes.
const (
	OutcomePersisted Outcome = "persisted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Receipt is the result of Append. Err explains a non persisted outcome.
type Receipt struct {
	ID        string
	CreatedAt time.Time
	Outcome   Outcome
	Err       error
}

// Persisted reports whether the record was written.
func (r Receipt) Persisted() bool {
	return r.Outcome == OutcomePersisted
}

// Page is one slice of the ledger, newest first.
type Page struct {
	Entries []model.StoredScan `json:"scans"`
	Total   int64              `json:"total"`
	HasMore bool               `json:"hasMore"`
}

func emptyPage() Page {
	return Page{Entries: []model.StoredScan{}}
}

// Ledger is the scan history. A Ledger without a store accepts appends as
// skipped and lists nothing.
type Ledger struct {
	store     repository.Store
	retention int64
	now       func() time.Time
	log       logger.Logger

	mu         sync.Mutex
	lastMillis int64
}

// New constructs a Ledger over store, which may be nil.
func New(store repository.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Get().Named("ledger")
	}
	return l
}

// Configured reports whether the ledger has a backing store.
func (l *Ledger) Configured() bool {
	return l.store != nil
}

// Retention returns the maximum number of retained records.
func (l *Ledger) Retention() int64 {
	return l.retention
}

// RecordKey returns the store key of the record with id.
func RecordKey(id string) string {
	return RecordPrefix + id
}

// nextMillis returns the current unix millisecond, bumped past the last one
// handed out so ids stay unique within the process.
func (l *Ledger) nextMillis() int64 {
	ms := l.now().UnixMilli()
	l.mu.Lock()
	defer l.mu.Unlock()
	if ms <= l.lastMillis {
		ms = l.lastMillis + 1
	}
	l.lastMillis = ms
	return ms
}

// Append records scan, assigning its id and timestamp. Any ID or ScannedAt
// on the input is ignored. Failures are reported in the receipt, never as a
// panic or error return.
func (l *Ledger) Append(ctx context.Context, scan model.StoredScan) Receipt { //nolint:gocritic // hugeParam: scan is copied before mutation
	ms := l.nextMillis()
	scan.ID = fmt.Sprintf("%s-%s-%d", scan.Owner, scan.RepoName, ms)
	scan.ScannedAt = time.UnixMilli(ms).UTC()
	r := Receipt{ID: scan.ID, CreatedAt: scan.ScannedAt}

	if l.store == nil {
		r.Outcome, r.Err = OutcomeSkipped, ErrNotConfigured
		metrics.RecordLedgerAppend(string(r.Outcome))
		return r
	}

	if err := l.write(ctx, scan, ms); err != nil {
		r.Outcome, r.Err = OutcomeFailed, err
		metrics.RecordLedgerAppend(string(r.Outcome))
		l.log.Warn(ctx, "scan not persisted", logger.String("id", scan.ID), logger.Error(err))
		return r
	}
	r.Outcome = OutcomePersisted
	metrics.RecordLedgerAppend(string(r.Outcome))

	total, err := l.store.Incr(ctx, CounterKey)
	if err != nil {
		metrics.RecordLedgerCounterFailure()
		metrics.RecordErrorByComponent("ledger", "counter_incr")
		l.log.Warn(ctx, "lifetime counter not incremented", logger.String("id", scan.ID), logger.Error(err))
	} else {
		metrics.UpdateLedgerLifetime(total)
	}

	if _, err := l.Evict(ctx); err != nil {
		l.log.Warn(ctx, "eviction failed", logger.Error(err))
	}
	return r
}

func (l *Ledger) write(ctx context.Context, scan model.StoredScan, ms int64) error { //nolint:gocritic // hugeParam
	payload, err := json.Marshal(scan)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrStore, scan.ID, err)
	}
	key := RecordKey(scan.ID)
	if err := l.store.Set(ctx, key, payload); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStore, key, err)
	}
	if err := l.store.ZAdd(ctx, IndexKey, float64(ms), scan.ID); err != nil {
		// An unindexed record is unreachable; drop it.
		if _, derr := l.store.Delete(ctx, key); derr != nil {
			l.log.Warn(ctx, "orphan record left behind", logger.String("key", key), logger.Error(derr))
		}
		return fmt.Errorf("%w: index %s: %w", ErrStore, scan.ID, err)
	}
	return nil
}

// Evict removes the oldest records beyond the retention limit and returns
// how many index entries it removed. Running it again, or concurrently with
// another eviction, removes nothing already gone.
//
// Victims are selected as "all but the newest retention members" in a single
// range call, so a stale size read can never trim below the limit.
func (l *Ledger) Evict(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, ErrNotConfigured
	}
	size, err := l.store.ZCard(ctx, IndexKey)
	if err != nil {
		return 0, fmt.Errorf("%w: size: %w", ErrStore, err)
	}
	metrics.UpdateLedgerSize(size)
	if size <= l.retention {
		return 0, nil
	}

	victims, err := l.store.ZRange(ctx, IndexKey, 0, -(l.retention + 1), false)
	if err != nil {
		return 0, fmt.Errorf("%w: oldest: %w", ErrStore, err)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	ids := make([]string, len(victims))
	keys := make([]string, len(victims))
	for i, v := range victims {
		ids[i] = v.Member
		keys[i] = RecordKey(v.Member)
	}

	// Records go first so a failure part way leaves index entries that List
	// skips rather than records nothing can reach.
	if _, err := l.store.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("%w: delete records: %w", ErrStore, err)
	}
	removed, err := l.store.ZRem(ctx, IndexKey, ids...)
	if err != nil {
		return 0, fmt.Errorf("%w: trim index: %w", ErrStore, err)
	}

	metrics.RecordLedgerEvictions(removed)
	if removed > 0 {
		metrics.UpdateLedgerSize(size - int64(removed))
		l.log.Debug(ctx, "evicted old scans", logger.Int("count", removed))
	}
	return removed, nil
}

// List returns up to limit records, newest first, after skipping offset.
// Total is the lifetime counter. Store failures yield an empty page; only
// invalid arguments return an error.
func (l *Ledger) List(ctx context.Context, offset, limit int) (Page, error) {
	if offset < 0 || limit < 1 {
		return Page{}, fmt.Errorf("%w: offset %d, limit %d", ErrInvalidPage, offset, limit)
	}
	if l.store == nil {
		return emptyPage(), nil
	}

	start := time.Now()
	defer func() { metrics.RecordLedgerQueryLatency(time.Since(start)) }()

	total, err := l.store.Counter(ctx, CounterKey)
	if err != nil {
		l.log.Warn(ctx, "ledger unavailable", logger.Error(err))
		return emptyPage(), nil
	}

	// Nothing past the lifetime count was ever written.
	first := int64(offset)
	if first >= total {
		return Page{Entries: []model.StoredScan{}, Total: total}, nil
	}
	remaining := total - first
	last := first + min(int64(limit), math.MaxInt64-first) - 1

	members, err := l.store.ZRange(ctx, IndexKey, first, last, true)
	if err != nil {
		l.log.Warn(ctx, "ledger unavailable", logger.Error(err))
		return emptyPage(), nil
	}

	entries := make([]model.StoredScan, 0, len(members))
	for _, m := range members {
		raw, err := l.store.Get(ctx, RecordKey(m.Member))
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				l.log.Warn(ctx, "record unreadable", logger.String("id", m.Member), logger.Error(err))
			}
			continue
		}
		var scan model.StoredScan
		if err := json.Unmarshal(raw, &scan); err != nil {
			l.log.Warn(ctx, "record undecodable", logger.String("id", m.Member), logger.Error(err))
			continue
		}
		entries = append(entries, scan)
	}

	return Page{
		Entries: entries,
		Total:   total,
		HasMore: int64(limit) < remaining,
	}, nil
}

// LifetimeCount returns how many scans were ever appended, zero when the
// store is missing or unreachable.
func (l *Ledger) LifetimeCount(ctx context.Context) int64 {
	if l.store == nil {
		return 0
	}
	n, err := l.store.Counter(ctx, CounterKey)
	if err != nil {
		l.log.Warn(ctx, "lifetime counter unavailable", logger.Error(err))
		return 0
	}
	return n
}

// Ping reports whether the backing store is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	if l.store == nil {
		return ErrNotConfigured
	}
	return l.store.Ping(ctx)
}
