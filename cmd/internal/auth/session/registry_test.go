package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func waitReady(t *testing.T, st *Store) {
	t.Helper()
	select {
	case <-st.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("store never became ready")
	}
}

func TestRegistry_OpenReusesStore(t *testing.T) {
	reg := NewRegistry(NewMemoryBackend(time.Hour), nil, RegistryConfig{}, testLogger())

	a := reg.Open("tab-1")
	b := reg.Open("tab-1")
	if a != b {
		t.Fatalf("Open returned different stores for the same tab")
	}
	if c := reg.Open("tab-2"); c == a {
		t.Fatalf("Open returned the same store for different tabs")
	}
	if reg.Len() != 2 {
		t.Fatalf("Len: got %d want 2", reg.Len())
	}
}

func TestRegistry_OpenInitializesFromBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(time.Hour)
	scope := func(id string) string { return "h:" + id }

	if err := backend.Set(ctx, "h:tab-1", TokenKey, "saved"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reg := NewRegistry(backend, scope, RegistryConfig{}, testLogger())
	st := reg.Open("tab-1")
	waitReady(t, st)

	if tok, _ := st.Token(); tok != "saved" {
		t.Fatalf("token: got %q want saved", tok)
	}
}

func TestRegistry_SweepEvictsIdle(t *testing.T) {
	var (
		mu      sync.Mutex
		evicted []string
	)
	reg := NewRegistry(NewMemoryBackend(time.Hour), nil, RegistryConfig{
		Idle: time.Minute,
		OnEvict: func(id string) {
			mu.Lock()
			evicted = append(evicted, id)
			mu.Unlock()
		},
	}, testLogger())

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	reg.Open("old")
	now = now.Add(50 * time.Second)
	reg.Open("fresh")

	got := reg.Sweep(now.Add(20 * time.Second))
	if len(got) != 1 || got[0] != "old" {
		t.Fatalf("Sweep: got %v want [old]", got)
	}
	if _, ok := reg.Lookup("old"); ok {
		t.Fatalf("old still registered")
	}
	if _, ok := reg.Lookup("fresh"); !ok {
		t.Fatalf("fresh evicted")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 1 || evicted[0] != "old" {
		t.Fatalf("OnEvict: got %v want [old]", evicted)
	}
}

func TestRegistry_SweepDisabledWithoutIdle(t *testing.T) {
	reg := NewRegistry(NewMemoryBackend(time.Hour), nil, RegistryConfig{}, testLogger())
	reg.Open("tab")

	if got := reg.Sweep(time.Now().Add(24 * time.Hour)); got != nil {
		t.Fatalf("Sweep: got %v want nil", got)
	}
}

func TestRegistry_EvictedTabReloadsFromStorage(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMemoryBackend(time.Hour), nil, RegistryConfig{}, testLogger())

	st := reg.Open("tab")
	waitReady(t, st)
	if err := st.SaveToken(ctx, "abc"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	reg.Forget("tab")

	again := reg.Open("tab")
	if again == st {
		t.Fatalf("Forget did not drop the store")
	}
	waitReady(t, again)
	if tok, _ := again.Token(); tok != "abc" {
		t.Fatalf("token after reload: got %q want abc", tok)
	}
}
