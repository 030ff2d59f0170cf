// Package attachment resolves opaque payload references to textual content.
// Attachments are owned elsewhere; the pipeline only reads them while
// assembling prompt context.
package attachment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound reports a reference with no stored content. Callers substitute
// a placeholder instead of failing the turn.
var ErrNotFound = errors.New("attachment not found")

// Store resolves and stores attachment content by opaque reference.
type Store interface {
	Resolve(ctx context.Context, ref string) (string, error)
	Put(ctx context.Context, ref, content string) error
	Close() error
}

// NewStore creates a redis-backed store when an address is configured,
// otherwise in-memory.
func NewStore(redisAddr string, ttl time.Duration) Store {
	if strings.TrimSpace(redisAddr) == "" {
		return NewInMemoryStore()
	}
	client := redis.NewClient(&redis.Options{Addr: strings.TrimSpace(redisAddr)})
	return NewRedisStore(client, ttl)
}
