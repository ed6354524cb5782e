package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		BackendMemory: func(t *testing.T) Store {
			t.Helper()
			s := NewMemoryStore(context.Background())
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		BackendBadger: func(t *testing.T) Store {
			t.Helper()
			s, err := OpenBadgerStore(InMemoryBadgerConfig())
			if err != nil {
				t.Fatalf("open badger: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		BackendRedis: func(t *testing.T) Store {
			t.Helper()
			mr := miniredis.RunT(t)
			s, err := NewRedisStore(mr.Addr())
			if err != nil {
				t.Fatalf("new redis store: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// forEachBackend runs fn against a fresh store of every backend, wrapped in
// the instrumentation decorator so it is exercised too.
func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, Instrument(name, factory(t)))
		})
	}
}

func members(ms []Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Member
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStore_Values(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.Get(ctx, "scan:missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		if err := s.Set(ctx, "scan:a", []byte(`{"id":"a"}`)); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, err := s.Get(ctx, "scan:a")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(got) != `{"id":"a"}` {
			t.Errorf("unexpected value %q", got)
		}

		if err := s.Set(ctx, "scan:a", []byte("v2")); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		got, _ = s.Get(ctx, "scan:a")
		if string(got) != "v2" {
			t.Errorf("expected overwritten value, got %q", got)
		}

		n, err := s.Delete(ctx, "scan:a", "scan:missing")
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 deleted key, got %d", n)
		}
		if _, err := s.Get(ctx, "scan:a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected deleted key to be gone, got %v", err)
		}

		if n, _ := s.Delete(ctx); n != 0 {
			t.Errorf("expected empty delete to remove nothing, got %d", n)
		}
	})
}

func TestStore_Counters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		v, err := s.Counter(ctx, "scan_count")
		if err != nil || v != 0 {
			t.Fatalf("missing counter should read 0, got %d, %v", v, err)
		}

		for want := int64(1); want <= 3; want++ {
			got, err := s.Incr(ctx, "scan_count")
			if err != nil {
				t.Fatalf("incr: %v", err)
			}
			if got != want {
				t.Errorf("expected %d, got %d", want, got)
			}
		}

		v, err = s.Counter(ctx, "scan_count")
		if err != nil || v != 3 {
			t.Errorf("expected counter 3, got %d, %v", v, err)
		}

		if err := s.Set(ctx, "label", []byte("abc")); err != nil {
			t.Fatalf("set: %v", err)
		}
		if _, err := s.Incr(ctx, "label"); !errors.Is(err, ErrNotInteger) {
			t.Errorf("expected ErrNotInteger, got %v", err)
		}
		if _, err := s.Counter(ctx, "label"); !errors.Is(err, ErrNotInteger) {
			t.Errorf("expected ErrNotInteger, got %v", err)
		}
	})
}

func TestStore_ConcurrentIncr(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const workers = 32

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Incr(ctx, "scan_count"); err != nil {
					t.Errorf("incr: %v", err)
				}
			}()
		}
		wg.Wait()

		v, err := s.Counter(ctx, "scan_count")
		if err != nil || v != workers {
			t.Errorf("expected %d, got %d, %v", workers, v, err)
		}
	})
}

func TestStore_SortedSets(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if n, err := s.ZCard(ctx, "scans"); err != nil || n != 0 {
			t.Fatalf("empty set should have card 0, got %d, %v", n, err)
		}
		if got, err := s.ZRange(ctx, "scans", 0, -1, true); err != nil || len(got) != 0 {
			t.Fatalf("empty set should range to nothing, got %v, %v", got, err)
		}

		entries := []Member{
			{Member: "c", Score: 30},
			{Member: "a", Score: 10},
			{Member: "neg", Score: -1.5},
			{Member: "b", Score: 20},
			{Member: "b2", Score: 20},
		}
		for _, e := range entries {
			if err := s.ZAdd(ctx, "scans", e.Score, e.Member); err != nil {
				t.Fatalf("zadd %s: %v", e.Member, err)
			}
		}

		if n, _ := s.ZCard(ctx, "scans"); n != 5 {
			t.Errorf("expected card 5, got %d", n)
		}

		all, err := s.ZRange(ctx, "scans", 0, -1, false)
		if err != nil {
			t.Fatalf("zrange: %v", err)
		}
		if want := []string{"neg", "a", "b", "b2", "c"}; !equalStrings(members(all), want) {
			t.Errorf("ascending order: got %v, want %v", members(all), want)
		}
		if all[0].Score != -1.5 || all[4].Score != 30 {
			t.Errorf("scores not preserved: %+v", all)
		}

		rev, _ := s.ZRange(ctx, "scans", 0, 1, true)
		if want := []string{"c", "b2"}; !equalStrings(members(rev), want) {
			t.Errorf("descending head: got %v, want %v", members(rev), want)
		}

		tail, _ := s.ZRange(ctx, "scans", -2, -1, false)
		if want := []string{"b2", "c"}; !equalStrings(members(tail), want) {
			t.Errorf("negative indexes: got %v, want %v", members(tail), want)
		}

		clipped, _ := s.ZRange(ctx, "scans", 3, 100, true)
		if want := []string{"a", "neg"}; !equalStrings(members(clipped), want) {
			t.Errorf("clipped range: got %v, want %v", members(clipped), want)
		}

		if past, _ := s.ZRange(ctx, "scans", 10, 20, false); len(past) != 0 {
			t.Errorf("range past the end should be empty, got %v", past)
		}
		if inverted, _ := s.ZRange(ctx, "scans", 3, 1, false); len(inverted) != 0 {
			t.Errorf("inverted range should be empty, got %v", inverted)
		}

		// Re-scoring moves the member instead of duplicating it.
		if err := s.ZAdd(ctx, "scans", 5, "c"); err != nil {
			t.Fatalf("rescore: %v", err)
		}
		all, _ = s.ZRange(ctx, "scans", 0, -1, false)
		if want := []string{"neg", "c", "a", "b", "b2"}; !equalStrings(members(all), want) {
			t.Errorf("after rescore: got %v, want %v", members(all), want)
		}

		n, err := s.ZRem(ctx, "scans", "a", "missing")
		if err != nil || n != 1 {
			t.Errorf("zrem should remove 1, got %d, %v", n, err)
		}
		if n, _ := s.ZRem(ctx, "scans", "a"); n != 0 {
			t.Errorf("second zrem should be a no-op, got %d", n)
		}

		n, err = s.ZRemRangeByRank(ctx, "scans", 0, 1)
		if err != nil || n != 2 {
			t.Errorf("zremrangebyrank should remove 2, got %d, %v", n, err)
		}
		all, _ = s.ZRange(ctx, "scans", 0, -1, false)
		if want := []string{"b", "b2"}; !equalStrings(members(all), want) {
			t.Errorf("after trim: got %v, want %v", members(all), want)
		}

		if n, _ := s.ZRemRangeByRank(ctx, "scans", 5, 10); n != 0 {
			t.Errorf("trimming past the end should remove nothing, got %d", n)
		}

		if n, _ := s.Delete(ctx, "scans"); n != 1 {
			t.Errorf("deleting a set should count once, got %d", n)
		}
		if n, _ := s.ZCard(ctx, "scans"); n != 0 {
			t.Errorf("deleted set should be empty, got %d", n)
		}
	})
}

func TestStore_LargeSetOrdering(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const total = 300

		for i := 0; i < total; i++ {
			if err := s.ZAdd(ctx, "scans", float64(1_700_000_000_000+i), fmt.Sprintf("m-%04d", i)); err != nil {
				t.Fatalf("zadd: %v", err)
			}
		}

		page, err := s.ZRange(ctx, "scans", 20, 39, true)
		if err != nil {
			t.Fatalf("zrange: %v", err)
		}
		if len(page) != 20 {
			t.Fatalf("expected 20 members, got %d", len(page))
		}
		for i, m := range page {
			want := fmt.Sprintf("m-%04d", total-1-20-i)
			if m.Member != want {
				t.Fatalf("position %d: got %s, want %s", i, m.Member, want)
			}
		}

		n, err := s.ZRemRangeByRank(ctx, "scans", 0, total-250-1)
		if err != nil || n != 50 {
			t.Fatalf("expected 50 trimmed, got %d, %v", n, err)
		}
		oldest, _ := s.ZRange(ctx, "scans", 0, 0, false)
		if len(oldest) != 1 || oldest[0].Member != "m-0050" {
			t.Errorf("unexpected oldest after trim: %v", oldest)
		}
	})
}

func TestStore_PingAndClose(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()
			if err := s.Ping(ctx); err != nil {
				t.Fatalf("ping: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if err := s.Ping(ctx); err == nil {
				t.Error("ping after close should fail")
			}
			if err := s.Close(); err != nil {
				t.Errorf("second close should be harmless, got %v", err)
			}
		})
	}
}

func TestOpenBadgerStore_RequiresPath(t *testing.T) {
	if _, err := OpenBadgerStore(BadgerConfig{}); !errors.Is(err, ErrNoAddress) {
		t.Errorf("expected ErrNoAddress, got %v", err)
	}
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadgerStore(BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.ZAdd(ctx, "scans", 1, "first"); err != nil {
		t.Fatalf("zadd: %v", err)
	}
	if _, err := s.Incr(ctx, "scan_count"); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenBadgerStore(BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if n, _ := s.Counter(ctx, "scan_count"); n != 1 {
		t.Errorf("expected counter 1 after reopen, got %d", n)
	}
	if got, _ := s.ZRange(ctx, "scans", 0, -1, false); len(got) != 1 || got[0].Member != "first" {
		t.Errorf("expected set to survive reopen, got %v", got)
	}
}

func TestNewRedisStore(t *testing.T) {
	if _, err := NewRedisStore(""); !errors.Is(err, ErrNoAddress) {
		t.Errorf("expected ErrNoAddress, got %v", err)
	}
	if _, err := NewRedisStore("redis://:secret@localhost:6379/2", WithRedisTLS(true)); err != nil {
		t.Errorf("url form should parse: %v", err)
	}
	if _, err := NewRedisStore("::not a url://"); err == nil {
		t.Error("expected a parse error")
	}
}

func TestRankWindow(t *testing.T) {
	cases := []struct {
		start, stop, n int64
		lo, hi         int64
		ok             bool
	}{
		{0, -1, 5, 0, 4, true},
		{0, 0, 0, 0, 0, false},
		{-3, -1, 5, 2, 4, true},
		{-10, 1, 5, 0, 1, true},
		{2, 100, 5, 2, 4, true},
		{5, 6, 5, 0, 0, false},
		{3, 1, 5, 0, 0, false},
		{0, -6, 5, 0, 0, false},
	}
	for _, c := range cases {
		lo, hi, ok := rankWindow(c.start, c.stop, c.n)
		if ok != c.ok || (ok && (lo != c.lo || hi != c.hi)) {
			t.Errorf("rankWindow(%d,%d,%d) = %d,%d,%v want %d,%d,%v", c.start, c.stop, c.n, lo, hi, ok, c.lo, c.hi, c.ok)
		}
	}
}
