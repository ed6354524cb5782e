package skanctl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/agentskan/internal/domain/types"
	"github.com/okian/agentskan/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchWorkers = 4
	verifyPageSize      = 100
	// The ledger never retains more than this many records.
	maxVerifyEntries = 1000
)

// Outcome is the result of one submitted reference.
type Outcome struct {
	Ref    string
	Result types.ScanResult
	Err    error
}

// Report summarizes a batch run.
type Report struct {
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	Persisted int
	Queued    int

	// Verified counts persisted ids found in the ledger listing.
	Verified int
	Missing  []string

	LifetimeBefore int64
	LifetimeAfter  int64
	Duration       time.Duration
}

// ReadRefs reads one reference per line. Blank lines and lines starting
// with # are skipped.
func ReadRefs(r io.Reader) ([]string, error) {
	var refs []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, ErrNoReferences
	}
	return refs, nil
}

// RunBatch scans refs with at most workers requests in flight, then checks
// the ledger for every persisted record. Individual scan failures are
// reported, not returned; the error is non-nil only when the run itself
// could not complete or verification failed.
func RunBatch(ctx context.Context, c *Client, refs []string, workers int) (*Report, error) {
	if len(refs) == 0 {
		return nil, ErrNoReferences
	}
	if workers <= 0 {
		workers = defaultBatchWorkers
	}
	log := logger.Get().Named("skanctl")
	start := time.Now()

	if err := c.Health(ctx); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	before, err := c.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats before batch: %w", err)
	}

	log.Info(ctx, "submitting batch", logger.Int("refs", len(refs)), logger.Int("workers", workers))

	rep := &Report{
		Outcomes:       make([]Outcome, len(refs)),
		LifetimeBefore: before.TotalScans,
	}
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ref := range refs {
		g.Go(func() error {
			res, err := c.Scan(gctx, ref)
			rep.Outcomes[i] = Outcome{Ref: ref, Result: res, Err: err}
			n := done.Add(1)
			if err != nil {
				log.Warn(gctx, "scan failed", logger.String("ref", ref), logger.Error(err))
			} else {
				log.Debug(gctx, "scanned",
					logger.String("ref", ref),
					logger.Int("score", res.Score),
					logger.Int64("done", n))
			}
			// Only cancellation aborts the batch.
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}

	var ids []string
	for _, o := range rep.Outcomes {
		if o.Err != nil {
			rep.Failed++
			continue
		}
		rep.Succeeded++
		switch o.Result.Persistence.Outcome {
		case types.Persisted:
			rep.Persisted++
			ids = append(ids, o.Result.Persistence.ID)
		case types.Queued:
			rep.Queued++
		case types.NotPersisted:
		}
	}

	if err := verify(ctx, c, ids, rep); err != nil {
		rep.Duration = time.Since(start)
		return rep, err
	}
	rep.Duration = time.Since(start)

	log.Info(ctx, "batch complete",
		logger.Int("succeeded", rep.Succeeded),
		logger.Int("failed", rep.Failed),
		logger.Int("persisted", rep.Persisted),
		logger.Int("verified", rep.Verified),
		logger.Duration("duration", rep.Duration))
	return rep, nil
}

// verify pages through the ledger newest first looking for ids. It also
// checks the ordering of the listing and the growth of the lifetime count.
func verify(ctx context.Context, c *Client, ids []string, rep *Report) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var (
		seen int
		prev time.Time
	)
	for offset := 0; len(want) > 0 && seen < maxVerifyEntries; offset += verifyPageSize {
		page, err := c.List(ctx, offset, verifyPageSize)
		if err != nil {
			return fmt.Errorf("list scans: %w", err)
		}
		for _, s := range page.Scans {
			if !prev.IsZero() && s.ScannedAt.After(prev) {
				return fmt.Errorf("%w: listing not newest first at %s", ErrVerification, s.ID)
			}
			prev = s.ScannedAt
			if want[s.ID] {
				delete(want, s.ID)
				rep.Verified++
			}
		}
		seen += len(page.Scans)
		// Total counts evicted scans too, so HasMore can outlive the records.
		if !page.HasMore || len(page.Scans) == 0 {
			break
		}
	}
	for _, id := range ids {
		if want[id] {
			rep.Missing = append(rep.Missing, id)
		}
	}

	after, err := c.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats after batch: %w", err)
	}
	rep.LifetimeAfter = after.TotalScans

	// Records beyond the retention window are evicted, not lost.
	if rep.Verified < min(len(ids), seen) {
		return fmt.Errorf("%w: %d of %d persisted scans missing from the ledger", ErrVerification, len(rep.Missing), len(ids))
	}
	if grown := rep.LifetimeAfter - rep.LifetimeBefore; grown < int64(rep.Persisted) {
		return fmt.Errorf("%w: lifetime count grew by %d, want at least %d", ErrVerification, grown, rep.Persisted)
	}
	return nil
}
