package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/okian/agentskan/internal/adapters/repository"
	ledger "github.com/okian/agentskan/internal/domain/ledger"
	model "github.com/okian/agentskan/internal/domain/model"
	"github.com/okian/agentskan/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var errBackend = errors.New("backend down")

// flakyStore wraps a real store and fails selected operations.
type flakyStore struct {
	repository.Store
	failAll  bool
	failZAdd bool
	failIncr bool
	deleted  []string
}

func (f *flakyStore) Incr(ctx context.Context, key string) (int64, error) {
	if f.failAll || f.failIncr {
		return 0, errBackend
	}
	return f.Store.Incr(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failAll {
		return errBackend
	}
	return f.Store.Set(ctx, key, value)
}

func (f *flakyStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if f.failAll || f.failZAdd {
		return errBackend
	}
	return f.Store.ZAdd(ctx, key, score, member)
}

func (f *flakyStore) Delete(ctx context.Context, keys ...string) (int, error) {
	f.deleted = append(f.deleted, keys...)
	return f.Store.Delete(ctx, keys...)
}

func (f *flakyStore) Counter(ctx context.Context, key string) (int64, error) {
	if f.failAll {
		return 0, errBackend
	}
	return f.Store.Counter(ctx, key)
}

func (f *flakyStore) ZRange(ctx context.Context, key string, start, stop int64, rev bool) ([]repository.Member, error) {
	if f.failAll {
		return nil, errBackend
	}
	return f.Store.ZRange(ctx, key, start, stop, rev)
}

func sampleScan(i int) model.StoredScan {
	return model.StoredScan{
		RepoURL:      fmt.Sprintf("https://github.com/acme/agent-%d", i),
		RepoName:     fmt.Sprintf("agent-%d", i),
		Owner:        "acme",
		Score:        i % 101,
		RiskLevel:    model.RiskMedium,
		Stars:        i,
		Forks:        1,
		AgeInDays:    30,
		Contributors: 2,
		FlagsCount:   1,
	}
}

func newMemoryStore(t *testing.T) repository.Store {
	s := repository.NewMemoryStore(context.Background())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// steppingClock advances one millisecond per call from a fixed instant.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestLedgerRetention(t *testing.T) {
	Convey("Given a ledger with the default retention", t, func() {
		ctx := context.Background()
		store := newMemoryStore(t)
		l := ledger.New(store, ledger.WithClock(steppingClock()), ledger.WithLogger(logger.NewNop()))

		Convey("When 1001 scans are appended", func() {
			var first, last ledger.Receipt
			for i := 0; i < 1001; i++ {
				r := l.Append(ctx, sampleScan(i))
				So(r.Outcome, ShouldEqual, ledger.OutcomePersisted)
				if i == 0 {
					first = r
				}
				last = r
			}

			Convey("Then exactly 1000 remain and the oldest is gone", func() {
				page, err := l.List(ctx, 0, 2000)
				So(err, ShouldBeNil)
				So(len(page.Entries), ShouldEqual, 1000)
				So(page.Total, ShouldEqual, 1001)
				So(page.HasMore, ShouldBeFalse)
				So(page.Entries[0].ID, ShouldEqual, last.ID)
				So(page.Entries[999].RepoName, ShouldEqual, "agent-1")

				_, err = store.Get(ctx, ledger.RecordKey(first.ID))
				So(err, ShouldEqual, repository.ErrNotFound)

				size, err := store.ZCard(ctx, ledger.IndexKey)
				So(err, ShouldBeNil)
				So(size, ShouldEqual, 1000)
			})

			Convey("Then the lifetime counter keeps counting", func() {
				So(l.LifetimeCount(ctx), ShouldEqual, 1001)
			})

			Convey("Then a page ending before the lifetime total reports more", func() {
				page, err := l.List(ctx, 0, 1000)
				So(err, ShouldBeNil)
				So(len(page.Entries), ShouldEqual, 1000)
				So(page.HasMore, ShouldBeTrue)
			})
		})
	})
}

func TestLedgerList(t *testing.T) {
	Convey("Given an empty ledger", t, func() {
		ctx := context.Background()
		l := ledger.New(newMemoryStore(t), ledger.WithLogger(logger.NewNop()))

		Convey("When listing the first page", func() {
			page, err := l.List(ctx, 0, 20)

			Convey("Then it should be empty with zero total", func() {
				So(err, ShouldBeNil)
				So(page.Entries, ShouldNotBeNil)
				So(page.Entries, ShouldBeEmpty)
				So(page.Total, ShouldEqual, 0)
				So(page.HasMore, ShouldBeFalse)
			})
		})

		Convey("When the page request is invalid", func() {
			_, errOffset := l.List(ctx, -1, 20)
			_, errLimit := l.List(ctx, 0, 0)

			Convey("Then it should be rejected", func() {
				So(errors.Is(errOffset, ledger.ErrInvalidPage), ShouldBeTrue)
				So(errors.Is(errLimit, ledger.ErrInvalidPage), ShouldBeTrue)
			})
		})
	})

	Convey("Given a ledger holding 25 scans", t, func() {
		ctx := context.Background()
		store := newMemoryStore(t)
		l := ledger.New(store, ledger.WithClock(steppingClock()), ledger.WithLogger(logger.NewNop()))
		for i := 0; i < 25; i++ {
			l.Append(ctx, sampleScan(i))
		}

		Convey("When listing the first page", func() {
			page, err := l.List(ctx, 0, 20)

			Convey("Then it should hold the newest twenty, newest first", func() {
				So(err, ShouldBeNil)
				So(len(page.Entries), ShouldEqual, 20)
				So(page.Total, ShouldEqual, 25)
				So(page.HasMore, ShouldBeTrue)
				So(page.Entries[0].RepoName, ShouldEqual, "agent-24")
				So(page.Entries[19].RepoName, ShouldEqual, "agent-5")
				for i := 1; i < len(page.Entries); i++ {
					So(page.Entries[i-1].ScannedAt.After(page.Entries[i].ScannedAt), ShouldBeTrue)
				}
			})
		})

		Convey("When listing the second page", func() {
			page, err := l.List(ctx, 20, 20)

			Convey("Then it should hold the remainder", func() {
				So(err, ShouldBeNil)
				So(len(page.Entries), ShouldEqual, 5)
				So(page.HasMore, ShouldBeFalse)
				So(page.Entries[4].RepoName, ShouldEqual, "agent-0")
			})
		})

		Convey("When the offset is past the end", func() {
			page, err := l.List(ctx, 25, 20)

			Convey("Then the page is empty and reports nothing more", func() {
				So(err, ShouldBeNil)
				So(page.Entries, ShouldBeEmpty)
				So(page.Total, ShouldEqual, 25)
				So(page.HasMore, ShouldBeFalse)
			})
		})

		Convey("When offset plus limit exceeds the integer range", func() {
			nearMax, err := l.List(ctx, math.MaxInt-5, 20)
			So(err, ShouldBeNil)
			hugeLimit, err := l.List(ctx, 24, math.MaxInt)
			So(err, ShouldBeNil)

			Convey("Then paging does not wrap around", func() {
				So(nearMax.Entries, ShouldBeEmpty)
				So(nearMax.HasMore, ShouldBeFalse)
				So(hugeLimit.Entries, ShouldHaveLength, 1)
				So(hugeLimit.Entries[0].RepoName, ShouldEqual, "agent-0")
				So(hugeLimit.HasMore, ShouldBeFalse)
			})
		})

		Convey("When a record vanished from under its index entry", func() {
			first, _ := l.List(ctx, 0, 1)
			_, err := store.Delete(ctx, ledger.RecordKey(first.Entries[0].ID))
			So(err, ShouldBeNil)
			page, err := l.List(ctx, 0, 3)

			Convey("Then it should be skipped", func() {
				So(err, ShouldBeNil)
				So(len(page.Entries), ShouldEqual, 2)
				So(page.Entries[0].RepoName, ShouldEqual, "agent-23")
			})
		})

		Convey("When a record is not valid JSON", func() {
			first, _ := l.List(ctx, 0, 1)
			So(store.Set(ctx, ledger.RecordKey(first.Entries[0].ID), []byte("{broken")), ShouldBeNil)
			page, err := l.List(ctx, 0, 2)

			Convey("Then it should be skipped", func() {
				So(err, ShouldBeNil)
				So(len(page.Entries), ShouldEqual, 1)
			})
		})
	})
}

func TestLedgerAppend(t *testing.T) {
	Convey("Given a ledger whose clock does not move", t, func() {
		ctx := context.Background()
		fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		l := ledger.New(newMemoryStore(t), ledger.WithClock(func() time.Time { return fixed }), ledger.WithLogger(logger.NewNop()))

		Convey("When the same repository is scanned twice", func() {
			in := sampleScan(1)
			in.ID = "caller-supplied"
			a := l.Append(ctx, in)
			b := l.Append(ctx, in)

			Convey("Then each write gets its own time-suffixed id", func() {
				So(a.ID, ShouldEqual, fmt.Sprintf("acme-agent-1-%d", fixed.UnixMilli()))
				So(b.ID, ShouldEqual, fmt.Sprintf("acme-agent-1-%d", fixed.UnixMilli()+1))
				So(b.CreatedAt.After(a.CreatedAt), ShouldBeTrue)
				So(a.Persisted(), ShouldBeTrue)
			})

			Convey("Then the stored records carry the assigned identity", func() {
				page, err := l.List(ctx, 0, 10)
				So(err, ShouldBeNil)
				So(len(page.Entries), ShouldEqual, 2)
				So(page.Entries[0].ID, ShouldEqual, b.ID)
				So(page.Entries[0].ScannedAt.Equal(b.CreatedAt), ShouldBeTrue)
				So(page.Entries[1].ID, ShouldEqual, a.ID)
			})
		})
	})

	Convey("Given a ledger without a store", t, func() {
		ctx := context.Background()
		l := ledger.New(nil, ledger.WithLogger(logger.NewNop()))

		Convey("Then appends are skipped without failing", func() {
			r := l.Append(ctx, sampleScan(1))
			So(l.Configured(), ShouldBeFalse)
			So(r.Outcome, ShouldEqual, ledger.OutcomeSkipped)
			So(errors.Is(r.Err, ledger.ErrNotConfigured), ShouldBeTrue)
			So(r.ID, ShouldNotBeEmpty)
		})

		Convey("Then reads return an empty page", func() {
			page, err := l.List(ctx, 0, 20)
			So(err, ShouldBeNil)
			So(page.Entries, ShouldBeEmpty)
			So(page.Total, ShouldEqual, 0)
			So(page.HasMore, ShouldBeFalse)
			So(l.LifetimeCount(ctx), ShouldEqual, 0)
			So(errors.Is(l.Ping(ctx), ledger.ErrNotConfigured), ShouldBeTrue)
		})
	})

	Convey("Given a ledger whose store is unreachable", t, func() {
		ctx := context.Background()
		store := &flakyStore{Store: newMemoryStore(t), failAll: true}
		l := ledger.New(store, ledger.WithLogger(logger.NewNop()))

		Convey("Then appends report a failure instead of returning an error", func() {
			r := l.Append(ctx, sampleScan(1))
			So(r.Outcome, ShouldEqual, ledger.OutcomeFailed)
			So(errors.Is(r.Err, ledger.ErrStore), ShouldBeTrue)
			So(errors.Is(r.Err, errBackend), ShouldBeTrue)
		})

		Convey("Then reads degrade to an empty page", func() {
			page, err := l.List(ctx, 0, 20)
			So(err, ShouldBeNil)
			So(page.Entries, ShouldBeEmpty)
			So(page.Total, ShouldEqual, 0)
			So(page.HasMore, ShouldBeFalse)
			So(l.LifetimeCount(ctx), ShouldEqual, 0)
		})
	})

	Convey("Given a store whose counter cannot be incremented", t, func() {
		ctx := context.Background()
		store := &flakyStore{Store: newMemoryStore(t), failIncr: true}
		l := ledger.New(store, ledger.WithLogger(logger.NewNop()))

		Convey("When appending", func() {
			r := l.Append(ctx, sampleScan(1))

			Convey("Then the record is persisted while the lifetime count lags", func() {
				So(r.Outcome, ShouldEqual, ledger.OutcomePersisted)
				So(r.Err, ShouldBeNil)
				_, err := store.Get(ctx, ledger.RecordKey(r.ID))
				So(err, ShouldBeNil)
				So(l.LifetimeCount(ctx), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a store that cannot index", t, func() {
		ctx := context.Background()
		store := &flakyStore{Store: newMemoryStore(t), failZAdd: true}
		l := ledger.New(store, ledger.WithLogger(logger.NewNop()))

		Convey("When appending", func() {
			r := l.Append(ctx, sampleScan(1))

			Convey("Then the unindexed record is removed and the counter untouched", func() {
				So(r.Outcome, ShouldEqual, ledger.OutcomeFailed)
				So(store.deleted, ShouldContain, ledger.RecordKey(r.ID))
				_, err := store.Get(ctx, ledger.RecordKey(r.ID))
				So(err, ShouldEqual, repository.ErrNotFound)
				So(l.LifetimeCount(ctx), ShouldEqual, 0)
			})
		})
	})
}

func TestLedgerEviction(t *testing.T) {
	Convey("Given a store over the retention limit", t, func() {
		ctx := context.Background()
		store := newMemoryStore(t)
		writer := ledger.New(store, ledger.WithRetention(100), ledger.WithClock(steppingClock()), ledger.WithLogger(logger.NewNop()))
		for i := 0; i < 30; i++ {
			writer.Append(ctx, sampleScan(i))
		}
		trimmer := ledger.New(store, ledger.WithRetention(10), ledger.WithLogger(logger.NewNop()))

		Convey("When evicting twice", func() {
			first, err1 := trimmer.Evict(ctx)
			second, err2 := trimmer.Evict(ctx)

			Convey("Then the second run is a no-op", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldEqual, 20)
				So(second, ShouldEqual, 0)
				So(trimmer.LifetimeCount(ctx), ShouldEqual, 30)
			})

			Convey("Then only the newest records survive", func() {
				page, err := trimmer.List(ctx, 0, 50)
				So(err, ShouldBeNil)
				So(len(page.Entries), ShouldEqual, 10)
				So(page.Entries[9].RepoName, ShouldEqual, "agent-20")
			})
		})

		Convey("When many evictions race", func() {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				removed int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					n, err := trimmer.Evict(ctx)
					if err == nil {
						mu.Lock()
						removed += n
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then the excess is removed exactly once", func() {
				So(removed, ShouldEqual, 20)
				size, err := store.ZCard(ctx, ledger.IndexKey)
				So(err, ShouldBeNil)
				So(size, ShouldEqual, 10)
			})
		})
	})

	Convey("Given concurrent appends past the limit", t, func() {
		ctx := context.Background()
		store := newMemoryStore(t)
		l := ledger.New(store, ledger.WithRetention(50), ledger.WithLogger(logger.NewNop()))

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					l.Append(ctx, sampleScan(w*100+i))
				}
			}(w)
		}
		wg.Wait()

		Convey("Then the ledger never ends above the limit and counts every write", func() {
			size, err := store.ZCard(ctx, ledger.IndexKey)
			So(err, ShouldBeNil)
			So(size, ShouldEqual, 50)
			So(l.LifetimeCount(ctx), ShouldEqual, 200)
		})
	})

	Convey("Given a ledger without a store", t, func() {
		_, err := ledger.New(nil, ledger.WithLogger(logger.NewNop())).Evict(context.Background())
		So(errors.Is(err, ledger.ErrNotConfigured), ShouldBeTrue)
	})
}

func TestLedgerBackends(t *testing.T) {
	Convey("Given the ledger over the hosted and embedded backends", t, func() {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		rs, err := repository.NewRedisStore(mr.Addr())
		So(err, ShouldBeNil)
		bs, err := repository.OpenBadgerStore(repository.InMemoryBadgerConfig())
		So(err, ShouldBeNil)
		Reset(func() {
			_ = rs.Close()
			_ = bs.Close()
		})

		for name, store := range map[string]repository.Store{"redis": rs, "badger": bs} {
			l := ledger.New(store, ledger.WithRetention(5), ledger.WithClock(steppingClock()), ledger.WithLogger(logger.NewNop()))
			for i := 0; i < 8; i++ {
				So(l.Append(ctx, sampleScan(i)).Outcome, ShouldEqual, ledger.OutcomePersisted)
			}

			Convey(fmt.Sprintf("Then %s keeps the five newest and counts all eight", name), func() {
				page, err := l.List(ctx, 0, 10)
				So(err, ShouldBeNil)
				So(len(page.Entries), ShouldEqual, 5)
				So(page.Total, ShouldEqual, 8)
				So(page.Entries[0].RepoName, ShouldEqual, "agent-7")
				So(page.Entries[4].RepoName, ShouldEqual, "agent-3")
			})
		}
	})
}
