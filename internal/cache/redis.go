package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "betalens:"

// RedisStore shares cache entries between processes. Redis enforces the TTL.
type RedisStore struct {
	client redis.Cmdable
	closer func() error
}

// NewRedisStore connects to addr and pings it.
func NewRedisStore(addr string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisStore{client: c, closer: c.Close}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(c redis.Cmdable) *RedisStore {
	return &RedisStore{client: c}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisKeyPrefix+key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Name() string { return BackendRedis }

func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
