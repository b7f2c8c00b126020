package session

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is the dev-only backend used when no external store is configured.
// Entries vanish with the process.
type MemoryBackend struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]map[string]memEntry
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryBackend constructs an in-memory Backend with the given idle TTL.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{
		ttl:     ttlOrDefault(ttl),
		now:     time.Now,
		entries: make(map[string]map[string]memEntry),
	}
}

// Get returns the entry for (scope, key) unless missing or expired.
func (m *MemoryBackend) Get(ctx context.Context, scope, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kv := m.entries[scope]
	e, ok := kv[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.After(m.now()) {
		delete(kv, key)
		if len(kv) == 0 {
			delete(m.entries, scope)
		}
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value and refreshes the TTL.
func (m *MemoryBackend) Set(ctx context.Context, scope, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kv := m.entries[scope]
	if kv == nil {
		kv = make(map[string]memEntry)
		m.entries[scope] = kv
	}
	kv[key] = memEntry{value: value, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Remove deletes (scope, key). Missing keys are not an error.
func (m *MemoryBackend) Remove(ctx context.Context, scope, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if kv := m.entries[scope]; kv != nil {
		delete(kv, key)
		if len(kv) == 0 {
			delete(m.entries, scope)
		}
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryBackend) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for scope, kv := range m.entries {
		for k, e := range kv {
			if !e.expiresAt.After(now) {
				delete(kv, k)
				n++
			}
		}
		if len(kv) == 0 {
			delete(m.entries, scope)
		}
	}
	return n
}

// Ping always succeeds.
func (m *MemoryBackend) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }
