package repository

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/agentskan/pkg/logger"
)

// Key layout:
//
//	v\x00<key>                        value or counter
//	z\x00<set>\x00m\x00<member>       member -> 8 byte score
//	z\x00<set>\x00s\x00<score><member> score index, empty value
const (
	valuePrefix = "v\x00"
	setPrefix   = "z\x00"
	sep         = "\x00"

	maxTxnRetries = 16
)

// BadgerStore is a Store persisted in an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	log logger.Logger

	// writeMu serialises read-modify-write transactions so in-process
	// writers do not conflict.
	writeMu sync.Mutex

	stopGC chan struct{}
	gcDone chan struct{}
	once   sync.Once
}

var _ Store = (*BadgerStore)(nil)

// badgerLogger adapts logger.Logger to badger's logger interface.
type badgerLogger struct {
	log logger.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

// OpenBadgerStore opens (or creates) a BadgerStore.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger: %w", ErrNoAddress)
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badger: create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{log: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}

	s := &BadgerStore{db: db, log: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.log != nil {
				s.log.Warn(context.Background(), "badger value log gc failed", logger.Error(err))
			}
		}
	}
}

func valueKey(key string) []byte {
	return []byte(valuePrefix + key)
}

func memberPrefix(set string) []byte {
	return []byte(setPrefix + set + sep + "m" + sep)
}

func scorePrefix(set string) []byte {
	return []byte(setPrefix + set + sep + "s" + sep)
}

func memberKey(set, member string) []byte {
	return append(memberPrefix(set), member...)
}

func scoreKey(set string, score float64, member string) []byte {
	k := scorePrefix(set)
	k = append(k, encodeScore(score)...)
	return append(k, member...)
}

// encodeScore maps a float64 onto 8 bytes whose lexical order matches the
// numeric order.
func encodeScore(f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, bits)
	return out
}

func decodeScore(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for i := 0; i < maxTxnRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return s.wrap(err)
		}
	}
	return s.wrap(badger.ErrConflict)
}

func (s *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.wrap(s.db.View(fn))
}

func (s *BadgerStore) wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrDBClosed):
		return ErrClosed
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotInteger):
		return err
	default:
		return fmt.Errorf("badger: %w", err)
	}
}

// Set implements Store.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(valueKey(key), value)
	})
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(valueKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, keys ...string) (int, error) {
	var n int
	err := s.update(ctx, func(txn *badger.Txn) error {
		n = 0
		for _, key := range keys {
			_, err := txn.Get(valueKey(key))
			switch {
			case err == nil:
				if err := txn.Delete(valueKey(key)); err != nil {
					return err
				}
				n++
				continue
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			removed, err := deletePrefix(txn, []byte(setPrefix+key+sep))
			if err != nil {
				return err
			}
			if removed > 0 {
				n++
			}
		}
		return nil
	})
	return n, err
}

func deletePrefix(txn *badger.Txn, prefix []byte) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	var doomed [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		doomed = append(doomed, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range doomed {
		if err := txn.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}

// ZAdd implements Store.
func (s *BadgerStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		mk := memberKey(key, member)
		item, err := txn.Get(mk)
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			old := decodeScore(raw)
			if old == score {
				return nil
			}
			if err := txn.Delete(scoreKey(key, old, member)); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(mk, encodeScore(score)); err != nil {
			return err
		}
		return txn.Set(scoreKey(key, score, member), nil)
	})
}

func zcard(txn *badger.Txn, key string) int64 {
	prefix := memberPrefix(key)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	var n int64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

// scanRanks walks the score index of key in ascending (or descending) order
// and returns ranks lo..hi of that walk.
func scanRanks(txn *badger.Txn, key string, lo, hi int64, rev bool) []Member {
	prefix := scorePrefix(key)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	opts.Reverse = rev
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if rev {
		// The prefix ends in a separator byte; bumping it gives the first
		// key past every key of the set.
		seek = bytes.Clone(prefix)
		seek[len(seek)-1]++
	}

	out := make([]Member, 0, hi-lo+1)
	var rank int64
	for it.Seek(seek); it.ValidForPrefix(prefix) && rank <= hi; it.Next() {
		if rank >= lo {
			k := it.Item().Key()[len(prefix):]
			out = append(out, Member{Score: decodeScore(k[:8]), Member: string(k[8:])})
		}
		rank++
	}
	return out
}

// ZRange implements Store.
func (s *BadgerStore) ZRange(ctx context.Context, key string, start, stop int64, rev bool) ([]Member, error) {
	out := []Member{}
	err := s.view(ctx, func(txn *badger.Txn) error {
		lo, hi, ok := rankWindow(start, stop, zcard(txn, key))
		if !ok {
			return nil
		}
		out = scanRanks(txn, key, lo, hi, rev)
		return nil
	})
	return out, err
}

func zrem(txn *badger.Txn, key, member string) (bool, error) {
	mk := memberKey(key, member)
	item, err := txn.Get(mk)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	if err := txn.Delete(scoreKey(key, decodeScore(raw), member)); err != nil {
		return false, err
	}
	return true, txn.Delete(mk)
}

// ZRem implements Store.
func (s *BadgerStore) ZRem(ctx context.Context, key string, members ...string) (int, error) {
	var n int
	err := s.update(ctx, func(txn *badger.Txn) error {
		n = 0
		for _, m := range members {
			ok, err := zrem(txn, key, m)
			if err != nil {
				return err
			}
			if ok {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ZRemRangeByRank implements Store.
func (s *BadgerStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int, error) {
	var n int
	err := s.update(ctx, func(txn *badger.Txn) error {
		n = 0
		lo, hi, ok := rankWindow(start, stop, zcard(txn, key))
		if !ok {
			return nil
		}
		for _, m := range scanRanks(txn, key, lo, hi, false) {
			if _, err := zrem(txn, key, m.Member); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// ZCard implements Store.
func (s *BadgerStore) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.view(ctx, func(txn *badger.Txn) error {
		n = zcard(txn, key)
		return nil
	})
	return n, err
}

func readCounter(txn *badger.Txn, key string) (int64, error) {
	item, err := txn.Get(valueKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return v, nil
}

// Incr implements Store.
func (s *BadgerStore) Incr(ctx context.Context, key string) (int64, error) {
	var next int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		cur, err := readCounter(txn, key)
		if err != nil {
			return err
		}
		next = cur + 1
		return txn.Set(valueKey(key), []byte(strconv.FormatInt(next, 10)))
	})
	return next, err
}

// Counter implements Store.
func (s *BadgerStore) Counter(ctx context.Context, key string) (int64, error) {
	var v int64
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		v, err = readCounter(txn, key)
		return err
	})
	return v, err
}

// Ping implements Store.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close stops value log GC and closes the database.
func (s *BadgerStore) Close() error {
	var err error
	s.once.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}
