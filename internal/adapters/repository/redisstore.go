package repository

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisDialTimeout = 5 * time.Second
	defaultRedisOpTimeout   = 3 * time.Second
)

// RedisStore is a Store backed by Redis or a Redis compatible service.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to addr, either "host:port" or a redis:// or
// rediss:// URL. The connection is verified lazily; call Ping to check it.
func NewRedisStore(addr string, opts ...RedisOption) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis: %w", ErrNoAddress)
	}
	o := redisOptions{dialTimeout: defaultRedisDialTimeout, opTimeout: defaultRedisOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	var ro *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		ro = parsed
	} else {
		ro = &redis.Options{Addr: addr, DB: o.db}
	}
	if o.password != "" {
		ro.Password = o.password
	}
	if o.tls && ro.TLSConfig == nil {
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	ro.DialTimeout = o.dialTimeout
	ro.ReadTimeout = o.opTimeout
	ro.WriteTimeout = o.opTimeout

	return &RedisStore{client: redis.NewClient(ro)}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func wrapRedis(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrNotFound
	case errors.Is(err, redis.ErrClosed):
		return ErrClosed
	case strings.Contains(err.Error(), "not an integer"):
		return ErrNotInteger
	default:
		return fmt.Errorf("redis: %w", err)
	}
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return wrapRedis(s.client.Set(ctx, key, value, 0).Err())
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, wrapRedis(err)
	}
	return v, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	return int(n), wrapRedis(err)
}

// ZAdd implements Store.
func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return wrapRedis(s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

// ZRange implements Store.
func (s *RedisStore) ZRange(ctx context.Context, key string, start, stop int64, rev bool) ([]Member, error) {
	var (
		zs  []redis.Z
		err error
	)
	if rev {
		zs, err = s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	} else {
		zs, err = s.client.ZRangeWithScores(ctx, key, start, stop).Result()
	}
	if err != nil {
		return nil, wrapRedis(err)
	}
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		m, ok := z.Member.(string)
		if !ok {
			m = fmt.Sprint(z.Member)
		}
		out = append(out, Member{Member: m, Score: z.Score})
	}
	return out, nil
}

// ZRem implements Store.
func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := s.client.ZRem(ctx, key, args...).Result()
	return int(n), wrapRedis(err)
}

// ZRemRangeByRank implements Store.
func (s *RedisStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int, error) {
	n, err := s.client.ZRemRangeByRank(ctx, key, start, stop).Result()
	return int(n), wrapRedis(err)
}

// ZCard implements Store.
func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	return n, wrapRedis(err)
}

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	return n, wrapRedis(err)
}

// Counter implements Store.
func (s *RedisStore) Counter(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			return 0, ErrNotInteger
		}
		return 0, wrapRedis(err)
	}
	return n, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return wrapRedis(s.client.Ping(ctx).Err())
}

// Close implements Store.
func (s *RedisStore) Close() error {
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
