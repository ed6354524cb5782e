package repository

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/okian/agentskan/pkg/metrics"
)

const defaultMetricsUpdateInterval = 5 * time.Second

// MemoryStore is an in-process Store. Sorted sets are treaps.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	sets   map[string]*sortedSet
	closed bool

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	stopOnce              sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store. A background goroutine publishes
// key counts until ctx is done or the store is closed.
func NewMemoryStore(ctx context.Context, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		values:                make(map[string][]byte),
		sets:                  make(map[string]*sortedSet),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.startMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoreKeys(BackendMemory, s.keyCount())
			}
		}
	}()
}

func (s *MemoryStore) keyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values) + len(s.sets)
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	v, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := 0
	for _, k := range keys {
		if _, ok := s.values[k]; ok {
			delete(s.values, k)
			n++
			continue
		}
		if _, ok := s.sets[k]; ok {
			delete(s.sets, k)
			n++
		}
	}
	return n, nil
}

// ZAdd implements Store.
func (s *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	set, ok := s.sets[key]
	if !ok {
		set = newSortedSet()
		s.sets[key] = set
	}
	set.add(member, score)
	return nil
}

// ZRange implements Store.
func (s *MemoryStore) ZRange(_ context.Context, key string, start, stop int64, rev bool) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	set, ok := s.sets[key]
	if !ok {
		return []Member{}, nil
	}
	n := int64(set.len())
	lo, hi, ok := rankWindow(start, stop, n)
	if !ok {
		return []Member{}, nil
	}
	if !rev {
		return set.rangeByRank(int(lo), int(hi)), nil
	}
	// Reverse rank i is ascending rank n-1-i.
	out := set.rangeByRank(int(n-1-hi), int(n-1-lo))
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ZRem implements Store.
func (s *MemoryStore) ZRem(_ context.Context, key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	set, ok := s.sets[key]
	if !ok {
		return 0, nil
	}
	n := 0
	for _, m := range members {
		if set.remove(m) {
			n++
		}
	}
	if set.len() == 0 {
		delete(s.sets, key)
	}
	return n, nil
}

// ZRemRangeByRank implements Store.
func (s *MemoryStore) ZRemRangeByRank(_ context.Context, key string, start, stop int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	set, ok := s.sets[key]
	if !ok {
		return 0, nil
	}
	lo, hi, ok := rankWindow(start, stop, int64(set.len()))
	if !ok {
		return 0, nil
	}
	victims := set.rangeByRank(int(lo), int(hi))
	for _, m := range victims {
		set.remove(m.Member)
	}
	if set.len() == 0 {
		delete(s.sets, key)
	}
	return len(victims), nil
}

// ZCard implements Store.
func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	if set, ok := s.sets[key]; ok {
		return int64(set.len()), nil
	}
	return 0, nil
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	var cur int64
	if raw, ok := s.values[key]; ok {
		v, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		cur = v
	}
	cur++
	s.values[key] = []byte(strconv.FormatInt(cur, 10))
	return cur, nil
}

// Counter implements Store.
func (s *MemoryStore) Counter(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	raw, ok := s.values[key]
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return v, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close stops the metrics goroutine. Later calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
