package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// TokenKey is the fixed storage key holding the raw upstream token.
const TokenKey = "veekites_token"

// Storage is the tab-scoped key-value contract used by a Store.
//
// Get reports ok=false for a missing key; a missing key is not an error.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Store is the single writer of one tab session's authentication state.
//
// Concurrency guarantees:
//   - phase and token change together under one lock; readers never see a torn state.
//   - Ready() is closed exactly once, after the phase becomes Ready.
//   - SaveToken/Logout are last-writer-wins, in memory and in storage alike: each mutation
//     holds writeMu across its memory update and its storage write.
type Store struct {
	log     *slog.Logger
	storage Storage

	// writeMu orders mutations; mu guards the fields below for readers.
	writeMu sync.Mutex

	mu    sync.RWMutex
	phase Phase
	token string

	initOnce  sync.Once
	readyOnce sync.Once
	ready     chan struct{}
}

// NewStore constructs a Store in PhaseInitializing over the given storage.
func NewStore(storage Storage, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		log:     log,
		storage: storage,
		phase:   PhaseInitializing,
		ready:   make(chan struct{}),
	}
}

// Initialize loads the saved token and moves the Store to PhaseReady.
//
// It runs at most once; later calls return immediately. Storage failures are treated as
// "no token" and only logged. If a mutation already resolved the Store, the loaded value
// is discarded.
func (s *Store) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		token := s.loadToken(ctx)

		s.mu.Lock()
		if s.phase == PhaseReady {
			s.mu.Unlock()
			s.log.Debug("session.init.superseded")
			return
		}
		s.token = token
		s.phase = PhaseReady
		s.mu.Unlock()

		s.markReady()
		s.log.Debug("session.init.ready", "authenticated", token != "")
	})
}

func (s *Store) loadToken(ctx context.Context) string {
	if s.storage == nil {
		return ""
	}
	v, ok, err := s.storage.Get(ctx, TokenKey)
	if err != nil {
		s.log.Warn("session.init.storage_unavailable", "err", err)
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// Ready returns a channel closed once the Store is in PhaseReady.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Snapshot returns phase and token read under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Phase: s.phase, Token: s.token}
}

// Phase returns the current phase.
func (s *Store) Phase() Phase {
	return s.Snapshot().Phase
}

// Token returns the current token and whether it is present.
func (s *Store) Token() (string, bool) {
	snap := s.Snapshot()
	return snap.Token, snap.Authenticated()
}

// State returns the tagged state of the current snapshot.
func (s *Store) State() State {
	return s.Snapshot().State()
}

// SaveToken sets the token in memory and writes it to storage.
//
// The in-memory write happens first and is kept even if the storage write fails;
// in that case the returned error wraps ErrPersist.
func (s *Store) SaveToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.token = token
	s.phase = PhaseReady
	s.mu.Unlock()
	s.markReady()

	if s.storage == nil {
		return nil
	}
	if err := s.storage.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// Logout clears the token (explicitly absent) and removes the storage entry.
func (s *Store) Logout(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.token = ""
	s.phase = PhaseReady
	s.mu.Unlock()
	s.markReady()

	if s.storage == nil {
		return nil
	}
	if err := s.storage.Remove(ctx, TokenKey); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}
