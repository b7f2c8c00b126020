package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Backend persists tab-scoped key-value entries for many tab sessions.
//
// scope is an opaque, already-derived identifier (never the raw cookie value).
// Entries expire after the backend's TTL of inactivity; a Set refreshes it.
type Backend interface {
	Get(ctx context.Context, scope, key string) (string, bool, error)
	Set(ctx context.Context, scope, key, value string) error
	Remove(ctx context.Context, scope, key string) error

	// Ping reports whether the backend is reachable (readiness).
	Ping(ctx context.Context) error
	Close() error
}

// Scoped binds a Backend to one scope, producing the Storage a Store uses.
func Scoped(b Backend, scope string) Storage {
	return scopedStorage{b: b, scope: scope}
}

type scopedStorage struct {
	b     Backend
	scope string
}

func (s scopedStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if s.b == nil {
		return "", false, errors.New("nil backend")
	}
	return s.b.Get(ctx, s.scope, key)
}

func (s scopedStorage) Set(ctx context.Context, key, value string) error {
	if s.b == nil {
		return errors.New("nil backend")
	}
	return s.b.Set(ctx, s.scope, key, value)
}

func (s scopedStorage) Remove(ctx context.Context, key string) error {
	if s.b == nil {
		return errors.New("nil backend")
	}
	return s.b.Remove(ctx, s.scope, key)
}

// Driver names accepted by OpenBackend.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// BackendConfig selects and configures a storage backend.
type BackendConfig struct {
	Driver string
	TTL    time.Duration

	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	BoltPath string
}

// NormalizeDriver lowercases and trims a driver name; empty means memory.
func NormalizeDriver(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return DriverMemory
	}
	return d
}

// OpenBackend constructs the backend named by cfg.Driver.
func OpenBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch NormalizeDriver(cfg.Driver) {
	case DriverMemory:
		return NewMemoryBackend(cfg.TTL), nil
	case DriverRedis:
		b, err := NewRedisBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case DriverPostgres:
		b, err := OpenPostgresBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case DriverBolt:
		b, err := OpenBoltBackend(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, ErrUnknownDriver
	}
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 12 * time.Hour
	}
	return ttl
}
