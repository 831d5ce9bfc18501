package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ping checks that the server is reachable.
func (r *RedisClient) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client.Ping(ctx).Err()
}

// Get returns the value of key, or Nil when it does not exist.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client.Get(ctx, key).Result()
}

// Set stores value under key. A zero ttl means no expiry.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes keys and returns how many existed.
func (r *RedisClient) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client.Del(ctx, keys...).Result()
}

// Exists counts how many of keys exist.
func (r *RedisClient) Exists(ctx context.Context, keys ...string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client.Exists(ctx, keys...).Result()
}

// HSet sets field/value pairs on the hash at key.
func (r *RedisClient) HSet(ctx context.Context, key string, values ...interface{}) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client.HSet(ctx, key, values...).Result()
}

func (r *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client.HGetAll(ctx, key).Result()
}

func (r *RedisClient) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client.HDel(ctx, key, fields...).Result()
}

// HLen returns the number of fields in the hash; a missing key counts as
// empty.
func (r *RedisClient) HLen(ctx context.Context, key string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client.HLen(ctx, key).Result()
}

// Publish sends message to channel. Non-string messages are JSON encoded.
// It returns the number of subscribers that received it.
func (r *RedisClient) Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	payload, err := encode(message)
	if err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, err := r.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		r.warn("publish failed", err, map[string]interface{}{"channel": channel})
	}
	return n, err
}

// Subscribe joins channels. The caller owns the returned PubSub and must
// close it.
func (r *RedisClient) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client.Subscribe(ctx, channels...)
}

// SetJSON stores value as its JSON encoding.
func (r *RedisClient) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return r.Set(ctx, key, data, ttl)
}

// GetJSON decodes the JSON value stored at key into dest.
func (r *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

func encode(message interface{}) (interface{}, error) {
	switch m := message.(type) {
	case string, []byte:
		return m, nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}
