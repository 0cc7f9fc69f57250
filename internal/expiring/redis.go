package expiring

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"onboarding/pkg/platform/sentinel"
)

// expiryGrace keeps a key around slightly past its envelope expiry so the
// Store, not Redis, decides when a value stops being readable.
const expiryGrace = time.Minute

// RedisBackend stores values in Redis. Keys carry a TTL so abandoned
// entries are reclaimed even if they are never read again.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps a Redis client. The client lifecycle is managed by
// the caller.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl+expiryGrace).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
