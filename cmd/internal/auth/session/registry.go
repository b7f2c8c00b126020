package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RegistryConfig controls tab session lifetime inside one process.
type RegistryConfig struct {
	// Idle is how long an unused tab session stays in memory. Zero disables eviction.
	Idle time.Duration

	// InitTimeout bounds the initial storage read of a new Store.
	InitTimeout time.Duration

	// OnEvict, if set, is called (outside the registry lock) for every evicted tab id.
	OnEvict func(tabID string)
}

// Registry maps tab ids to their Store. One Store exists per live tab session.
type Registry struct {
	log     *slog.Logger
	backend Backend
	scope   func(tabID string) string
	cfg     RegistryConfig
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	store    *Store
	lastSeen time.Time
}

// NewRegistry constructs a Registry over backend. scope derives the storage scope from a
// tab id; it must be deterministic.
func NewRegistry(backend Backend, scope func(tabID string) string, cfg RegistryConfig, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if scope == nil {
		scope = func(tabID string) string { return tabID }
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 5 * time.Second
	}
	return &Registry{
		log:     log,
		backend: backend,
		scope:   scope,
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
	}
}

// Open returns the Store for tabID, creating it on first use.
//
// A new Store starts in PhaseInitializing; its storage read runs in the background and
// callers observe completion through Store.Ready.
func (r *Registry) Open(tabID string) *Store {
	now := r.now()

	r.mu.Lock()
	if e, ok := r.entries[tabID]; ok {
		e.lastSeen = now
		r.mu.Unlock()
		return e.store
	}

	st := NewStore(Scoped(r.backend, r.scope(tabID)), r.log)
	r.entries[tabID] = &registryEntry{store: st, lastSeen: now}
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.InitTimeout)
		defer cancel()
		st.Initialize(ctx)
	}()

	return st
}

// Lookup returns the Store for tabID without creating one.
func (r *Registry) Lookup(tabID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tabID]
	if !ok {
		return nil, false
	}
	return e.store, true
}

// Forget drops tabID from memory. Persisted storage is untouched.
func (r *Registry) Forget(tabID string) {
	r.mu.Lock()
	_, ok := r.entries[tabID]
	delete(r.entries, tabID)
	r.mu.Unlock()

	if ok && r.cfg.OnEvict != nil {
		r.cfg.OnEvict(tabID)
	}
}

// Len returns the number of live tab sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts tab sessions idle since before now-Idle and returns their ids.
func (r *Registry) Sweep(now time.Time) []string {
	if r.cfg.Idle <= 0 {
		return nil
	}
	cutoff := now.Add(-r.cfg.Idle)

	r.mu.Lock()
	var evicted []string
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()

	if r.cfg.OnEvict != nil {
		for _, id := range evicted {
			r.cfg.OnEvict(id)
		}
	}
	if len(evicted) > 0 {
		r.log.Debug("session.registry.evicted", "count", len(evicted))
	}
	return evicted
}

// Run sweeps on every interval tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.cfg.Idle <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
