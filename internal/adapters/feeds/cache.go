package feeds

import (
	"context"
	"sync"
	"time"

	"github.com/okian/agentskan/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched snapshot is served before a refresh.
const DefaultTTL = 5 * time.Minute

// Snapshot is one cached upstream response.
type Snapshot[T any] struct {
	Value     T
	FetchedAt time.Time
	TTL       time.Duration
}

// Fresh reports whether the snapshot may still be served at now.
func (s Snapshot[T]) Fresh(now time.Time) bool {
	if s.FetchedAt.IsZero() {
		return false
	}
	return now.Before(s.FetchedAt.Add(s.TTL))
}

// FetchFunc loads the value for key from upstream.
type FetchFunc[T any] func(ctx context.Context, key string) (T, error)

// Cache keeps per-key snapshots and refreshes stale ones. Concurrent
// refreshes of the same key share one upstream call.
type Cache[T any] struct {
	name  string
	ttl   time.Duration
	fetch FetchFunc[T]

	mu      sync.RWMutex
	entries map[string]Snapshot[T]
	group   singleflight.Group
}

// NewCache constructs a cache labelled name for metrics.
func NewCache[T any](name string, ttl time.Duration, fetch FetchFunc[T]) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[T]{
		name:    name,
		ttl:     ttl,
		fetch:   fetch,
		entries: make(map[string]Snapshot[T]),
	}
}

// Get returns the snapshot for key, fetching it when missing or stale at now.
// A failed refresh is returned as an error and leaves any old snapshot in place.
func (c *Cache[T]) Get(ctx context.Context, key string, now time.Time) (Snapshot[T], error) {
	c.mu.RLock()
	snap, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && snap.Fresh(now) {
		metrics.RecordFeedCache(c.name, "hit")
		return snap, nil
	}
	metrics.RecordFeedCache(c.name, "miss")

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		cur, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && cur.Fresh(now) {
			return cur, nil
		}

		value, err := c.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		fresh := Snapshot[T]{Value: value, FetchedAt: now, TTL: c.ttl}
		c.mu.Lock()
		c.entries[key] = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return Snapshot[T]{}, err
	}
	return v.(Snapshot[T]), nil
}

// Invalidate drops every cached snapshot.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]Snapshot[T])
	c.mu.Unlock()
}
