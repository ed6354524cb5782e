// Package repository provides the key/value, sorted-set and counter stores
// backing the scan ledger.
package repository

import "context"

// Member is one element of a sorted set.
type Member struct {
	Member string
	Score  float64
}

// Store is a flat key/value space with sorted sets and counters.
//
// Sorted sets order members by score ascending, ties broken by member
// ascending. Rank ranges are inclusive and accept negative indexes counted
// from the end, so (0, -1) addresses the whole set. Counters share the value
// keyspace and are stored as decimal text.
type Store interface {
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Get returns the value under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes keys of any kind and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)

	// ZAdd inserts member or updates its score.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRange returns members by rank, highest scores first when rev is set.
	ZRange(ctx context.Context, key string, start, stop int64, rev bool) ([]Member, error)
	// ZRem removes members and reports how many were present.
	ZRem(ctx context.Context, key string, members ...string) (int, error)
	// ZRemRangeByRank removes members by ascending rank.
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int, error)
	// ZCard returns the number of members.
	ZCard(ctx context.Context, key string) (int64, error)

	// Incr increments the counter under key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Counter returns the counter under key, zero when missing.
	Counter(ctx context.Context, key string) (int64, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the backend.
	Close() error
}

// Backend names.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// rankWindow resolves a Redis style inclusive rank range against a set of
// size n. ok is false when the range selects nothing.
func rankWindow(start, stop, n int64) (lo, hi int64, ok bool) {
	if n <= 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
