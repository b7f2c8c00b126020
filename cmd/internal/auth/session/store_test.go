package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mapStorage is a minimal Storage with injectable failures.
type mapStorage struct {
	mu      sync.Mutex
	m       map[string]string
	getErr  error
	setErr  error
	gate    chan struct{}
	getHits int
}

func newMapStorage() *mapStorage {
	return &mapStorage{m: make(map[string]string)}
}

func (s *mapStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getHits++
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *mapStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.m[key] = value
	return nil
}

func (s *mapStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *mapStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[key]
	return ok
}

func TestStore_StartsInitializing(t *testing.T) {
	st := NewStore(newMapStorage(), testLogger())

	snap := st.Snapshot()
	if snap.Phase != PhaseInitializing {
		t.Fatalf("phase: got %v want %v", snap.Phase, PhaseInitializing)
	}
	if snap.Token != "" {
		t.Fatalf("token: got %q want empty", snap.Token)
	}
	if st.State() != StateInitializing {
		t.Fatalf("state: got %v want %v", st.State(), StateInitializing)
	}

	select {
	case <-st.Ready():
		t.Fatalf("Ready closed before Initialize")
	default:
	}
}

func TestStore_InitializeWithoutToken(t *testing.T) {
	st := NewStore(newMapStorage(), testLogger())
	st.Initialize(context.Background())

	<-st.Ready()
	if st.State() != StateUnauthenticated {
		t.Fatalf("state: got %v want %v", st.State(), StateUnauthenticated)
	}
}

func TestStore_InitializeStorageErrorMeansNoToken(t *testing.T) {
	storage := newMapStorage()
	storage.getErr = errors.New("storage unavailable")

	st := NewStore(storage, testLogger())
	st.Initialize(context.Background())

	snap := st.Snapshot()
	if snap.Phase != PhaseReady || snap.Token != "" {
		t.Fatalf("got %+v want Ready without token", snap)
	}
}

func TestStore_InitializeRunsOnce(t *testing.T) {
	storage := newMapStorage()
	st := NewStore(storage, testLogger())

	st.Initialize(context.Background())
	st.Initialize(context.Background())

	if storage.getHits != 1 {
		t.Fatalf("storage reads: got %d want 1", storage.getHits)
	}
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := newMapStorage()

	first := NewStore(storage, testLogger())
	first.Initialize(ctx)
	if err := first.SaveToken(ctx, "T-123"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	// A fresh Store over the same storage models a page reload.
	reloaded := NewStore(storage, testLogger())
	reloaded.Initialize(ctx)

	snap := reloaded.Snapshot()
	if snap.Phase != PhaseReady {
		t.Fatalf("phase: got %v want %v", snap.Phase, PhaseReady)
	}
	if snap.Token != "T-123" {
		t.Fatalf("token: got %q want %q", snap.Token, "T-123")
	}
}

func TestStore_LogoutClearsState(t *testing.T) {
	ctx := context.Background()
	storage := newMapStorage()

	st := NewStore(storage, testLogger())
	st.Initialize(ctx)
	if err := st.SaveToken(ctx, "T"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := st.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	snap := st.Snapshot()
	if snap.Phase != PhaseReady || snap.Token != "" {
		t.Fatalf("got %+v want Ready without token", snap)
	}
	if storage.has(TokenKey) {
		t.Fatalf("storage still holds %q", TokenKey)
	}
}

func TestStore_SaveTokenRejectsEmpty(t *testing.T) {
	st := NewStore(newMapStorage(), testLogger())

	for _, tok := range []string{"", "   "} {
		if err := st.SaveToken(context.Background(), tok); !errors.Is(err, ErrEmptyToken) {
			t.Fatalf("SaveToken(%q): got %v want ErrEmptyToken", tok, err)
		}
	}
	if st.Phase() != PhaseInitializing {
		t.Fatalf("rejected save changed phase to %v", st.Phase())
	}
}

func TestStore_SaveTokenPersistFailureKeepsMemory(t *testing.T) {
	storage := newMapStorage()
	storage.setErr = errors.New("disk full")

	st := NewStore(storage, testLogger())
	err := st.SaveToken(context.Background(), "T")
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("SaveToken: got %v want ErrPersist", err)
	}

	tok, ok := st.Token()
	if !ok || tok != "T" {
		t.Fatalf("token: got %q,%v want T,true", tok, ok)
	}
}

func TestStore_SaveBeforeInitializeWins(t *testing.T) {
	ctx := context.Background()
	storage := newMapStorage()
	storage.m[TokenKey] = "stale"
	storage.gate = make(chan struct{})

	st := NewStore(storage, testLogger())

	done := make(chan struct{})
	go func() {
		st.Initialize(ctx)
		close(done)
	}()

	if err := st.SaveToken(ctx, "fresh"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	close(storage.gate)
	<-done

	if tok, _ := st.Token(); tok != "fresh" {
		t.Fatalf("token: got %q want %q", tok, "fresh")
	}
}

// slowSetStorage blocks the first Set until release is closed.
type slowSetStorage struct {
	*mapStorage
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newSlowSetStorage() *slowSetStorage {
	return &slowSetStorage{
		mapStorage: newMapStorage(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (s *slowSetStorage) Set(ctx context.Context, key, value string) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.mapStorage.Set(ctx, key, value)
}

func (s *slowSetStorage) value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func TestStore_LogoutDuringSlowSaveStaysLoggedOut(t *testing.T) {
	ctx := context.Background()
	storage := newSlowSetStorage()
	st := NewStore(storage, testLogger())
	st.Initialize(ctx)

	saved := make(chan error, 1)
	go func() { saved <- st.SaveToken(ctx, "T") }()

	select {
	case <-storage.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("SaveToken never reached storage")
	}

	loggedOut := make(chan error, 1)
	go func() { loggedOut <- st.Logout(ctx) }()

	select {
	case err := <-loggedOut:
		t.Fatalf("Logout returned before the pending save finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(storage.release)
	if err := <-saved; err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := <-loggedOut; err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if st.State() != StateUnauthenticated {
		t.Fatalf("memory: got %v want %v", st.State(), StateUnauthenticated)
	}
	if storage.has(TokenKey) {
		t.Fatalf("storage still holds the token after logout")
	}

	reloaded := NewStore(storage, testLogger())
	reloaded.Initialize(ctx)
	if reloaded.State() != StateUnauthenticated {
		t.Fatalf("reload: got %v want %v", reloaded.State(), StateUnauthenticated)
	}
}

func TestStore_OverlappingSavesAgreeInStorage(t *testing.T) {
	ctx := context.Background()
	storage := newSlowSetStorage()
	st := NewStore(storage, testLogger())
	st.Initialize(ctx)

	first := make(chan error, 1)
	go func() { first <- st.SaveToken(ctx, "A") }()
	<-storage.entered

	second := make(chan error, 1)
	go func() { second <- st.SaveToken(ctx, "B") }()

	time.Sleep(20 * time.Millisecond)
	close(storage.release)
	if err := <-first; err != nil {
		t.Fatalf("SaveToken(A): %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("SaveToken(B): %v", err)
	}

	tok, _ := st.Token()
	stored, _ := storage.value(TokenKey)
	if tok != "B" || stored != "B" {
		t.Fatalf("memory=%q storage=%q want both B", tok, stored)
	}
}

func TestStore_ReadyClosedByMutation(t *testing.T) {
	st := NewStore(newMapStorage(), testLogger())
	if err := st.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	select {
	case <-st.Ready():
	case <-time.After(time.Second):
		t.Fatalf("Ready not closed after Logout")
	}
}

func TestStore_ConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	ctx := context.Background()
	st := NewStore(newMapStorage(), testLogger())
	st.Initialize(ctx)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := st.Snapshot()
				if snap.Phase == PhaseInitializing && snap.Token != "" {
					t.Errorf("torn snapshot: %+v", snap)
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			_ = st.SaveToken(ctx, "T")
		} else {
			_ = st.Logout(ctx)
		}
	}
	close(stop)
	wg.Wait()
}

func TestSnapshot_State(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want State
	}{
		{"initializing", Snapshot{Phase: PhaseInitializing}, StateInitializing},
		{"ready_absent", Snapshot{Phase: PhaseReady}, StateUnauthenticated},
		{"ready_present", Snapshot{Phase: PhaseReady, Token: "x"}, StateAuthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.snap.State(); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}
