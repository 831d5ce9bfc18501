package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hashes are the hash commands the progress mirror and its tracking sets
// are built on. Each is a single atomic server-side operation.
type Hashes interface {
	HSet(ctx context.Context, key string, values ...interface{}) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)
	HLen(ctx context.Context, key string) (int64, error)
}

// Channels is pub/sub.
type Channels interface {
	Publish(ctx context.Context, channel string, message interface{}) (int64, error)
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type Keys interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
}

// Client is everything *RedisClient offers.
type Client interface {
	Keys
	Hashes
	Channels

	Ping(ctx context.Context) error
	Close() error
}

var _ Client = (*RedisClient)(nil)
