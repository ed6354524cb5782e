package repository

import (
	"context"
	"errors"
	"time"

	"github.com/okian/agentskan/pkg/metrics"
)

// Instrument wraps s so every operation is counted and timed under backend.
func Instrument(backend string, s Store) Store {
	return &instrumentedStore{backend: backend, next: s}
}

type instrumentedStore struct {
	backend string
	next    Store
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	// A missing key is an answer, not a failure.
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordStoreOperation(s.backend, op, err, time.Since(start))
}

func (s *instrumentedStore) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.next.Set(ctx, key, value)
	s.observe("set", start, err)
	return err
}

func (s *instrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return v, err
}

func (s *instrumentedStore) Delete(ctx context.Context, keys ...string) (int, error) {
	start := time.Now()
	n, err := s.next.Delete(ctx, keys...)
	s.observe("delete", start, err)
	return n, err
}

func (s *instrumentedStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	start := time.Now()
	err := s.next.ZAdd(ctx, key, score, member)
	s.observe("zadd", start, err)
	return err
}

func (s *instrumentedStore) ZRange(ctx context.Context, key string, start, stop int64, rev bool) ([]Member, error) {
	began := time.Now()
	out, err := s.next.ZRange(ctx, key, start, stop, rev)
	s.observe("zrange", began, err)
	return out, err
}

func (s *instrumentedStore) ZRem(ctx context.Context, key string, members ...string) (int, error) {
	start := time.Now()
	n, err := s.next.ZRem(ctx, key, members...)
	s.observe("zrem", start, err)
	return n, err
}

func (s *instrumentedStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int, error) {
	began := time.Now()
	n, err := s.next.ZRemRangeByRank(ctx, key, start, stop)
	s.observe("zremrangebyrank", began, err)
	return n, err
}

func (s *instrumentedStore) ZCard(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := s.next.ZCard(ctx, key)
	s.observe("zcard", start, err)
	return n, err
}

func (s *instrumentedStore) Incr(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := s.next.Incr(ctx, key)
	s.observe("incr", start, err)
	return n, err
}

func (s *instrumentedStore) Counter(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := s.next.Counter(ctx, key)
	s.observe("counter", start, err)
	return n, err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
