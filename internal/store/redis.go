package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements RecordStore on a Redis instance. Scalar records are
// plain string values, list records are Redis lists.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance named by url and verifies
// the connection with a ping.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	return &RedisStore{client: client}, nil
}

var _ RecordStore = (*RedisStore)(nil)

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Append(ctx context.Context, key string, element []byte) error {
	if err := s.client.RPush(ctx, key, element).Err(); err != nil {
		return fmt.Errorf("%w: append %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) GetList(ctx context.Context, key string) ([][]byte, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: range %q: %v", ErrUnavailable, key, err)
	}

	elements := make([][]byte, len(vals))
	for i, v := range vals {
		elements[i] = []byte(v)
	}
	return elements, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
