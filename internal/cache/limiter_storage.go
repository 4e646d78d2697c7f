package cache

import (
	"context"
	"time"
)

const opTimeout = 2 * time.Second

// LimiterStorage adapts RedisClient to fiber.Storage so rate-limit counters
// are shared between server instances.
type LimiterStorage struct {
	redis  *RedisClient
	prefix string
}

func NewLimiterStorage(r *RedisClient, prefix string) *LimiterStorage {
	if prefix == "" {
		prefix = "storefront:limiter:"
	}
	return &LimiterStorage{redis: r, prefix: prefix}
}

// Get returns nil, nil for a missing key, as fiber.Storage requires.
func (s *LimiterStorage) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	b, ok, err := s.redis.Get(ctx, s.prefix+key)
	if err != nil || !ok {
		return nil, err
	}
	return b, nil
}

func (s *LimiterStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.redis.Set(ctx, s.prefix+key, val, exp)
}

func (s *LimiterStorage) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.redis.Delete(ctx, s.prefix+key)
}

func (s *LimiterStorage) Reset() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.redis.DeletePrefix(ctx, s.prefix)
}

// Close leaves the shared client open; its owner closes it.
func (s *LimiterStorage) Close() error { return nil }
