package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores tab entries as plain string keys with an idle TTL.
//
// Key layout: <prefix><scope>:<key>
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend connects to Redis and verifies reachability.
func NewRedisBackend(ctx context.Context, cfg BackendConfig) (*RedisBackend, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, fmt.Errorf("%w: redis address required", ErrConfig)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisBackendWithClient(client, cfg.RedisPrefix, cfg.TTL), nil
}

// NewRedisBackendWithClient wraps an existing client. The backend takes ownership of it.
func NewRedisBackendWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "cms:tab:"
	}
	return &RedisBackend{
		client: client,
		prefix: prefix,
		ttl:    ttlOrDefault(ttl),
	}
}

func (r *RedisBackend) key(scope, key string) string {
	return r.prefix + scope + ":" + key
}

// Get returns the stored value; redis.Nil maps to ok=false.
func (r *RedisBackend) Get(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set writes value with the idle TTL.
func (r *RedisBackend) Set(ctx context.Context, scope, key, value string) error {
	return r.client.Set(ctx, r.key(scope, key), value, r.ttl).Err()
}

// Remove deletes the key.
func (r *RedisBackend) Remove(ctx context.Context, scope, key string) error {
	return r.client.Del(ctx, r.key(scope, key)).Err()
}

// Ping checks connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
