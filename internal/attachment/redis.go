package attachment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attachmentKeyPrefix = "attachment:"
	defaultTTL          = 24 * time.Hour
)

// RedisStore resolves attachment content from Redis with a TTL per entry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Resolve(ctx context.Context, ref string) (string, error) {
	content, err := s.client.Get(ctx, s.key(ref)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve attachment %q: %w", ref, err)
	}
	return content, nil
}

func (s *RedisStore) Put(ctx context.Context, ref, content string) error {
	if err := s.client.Set(ctx, s.key(ref), content, s.ttl).Err(); err != nil {
		return fmt.Errorf("store attachment %q: %w", ref, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(ref string) string {
	return attachmentKeyPrefix + ref
}
