package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/szaher/versailles/internal/backend"
)

// flakyStore wraps a MemoryStore and fails on demand.
type flakyStore struct {
	*MemoryStore
	mu   sync.Mutex
	down bool
	err  error
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: NewMemoryStore()}
}

func (f *flakyStore) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyStore) failure(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.down {
		return backend.Unavailable("fake", op, fmt.Errorf("connection refused"))
	}
	return nil
}

func (f *flakyStore) Load(ctx context.Context, id string) (State, error) {
	if err := f.failure("load"); err != nil {
		return State{}, err
	}
	return f.MemoryStore.Load(ctx, id)
}

func (f *flakyStore) Save(ctx context.Context, id string, st State) error {
	if err := f.failure("save"); err != nil {
		return err
	}
	return f.MemoryStore.Save(ctx, id, st)
}

func (f *flakyStore) Clear(ctx context.Context, id string) error {
	if err := f.failure("clear"); err != nil {
		return err
	}
	return f.MemoryStore.Clear(ctx, id)
}

type countingRecorder struct {
	mu  sync.Mutex
	ops map[string]int
}

func (r *countingRecorder) StoreFallback(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil {
		r.ops = make(map[string]int)
	}
	r.ops[op]++
}

func TestFallbackStore_PassThrough(t *testing.T) {
	primary := newFlakyStore()
	store := NewFallbackStore(primary)
	ctx := context.Background()

	if err := store.Save(ctx, "s1", State{ChatHistory: "a"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if st, _ := primary.MemoryStore.Load(ctx, "s1"); st.ChatHistory != "a" {
		t.Errorf("primary ChatHistory = %q, want a", st.ChatHistory)
	}
	if store.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", store.Pending())
	}

	st, err := store.Load(ctx, "s1")
	if err != nil || st.ChatHistory != "a" {
		t.Errorf("Load = %q, %v", st.ChatHistory, err)
	}
}

func TestFallbackStore_SurvivesOutage(t *testing.T) {
	primary := newFlakyStore()
	rec := &countingRecorder{}
	store := NewFallbackStore(primary, WithFallbackRecorder(rec))
	ctx := context.Background()

	primary.setDown(true)

	st, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load during outage: %v", err)
	}
	if st.ChatHistory != "" {
		t.Errorf("ChatHistory = %q, want empty", st.ChatHistory)
	}

	if err := store.Save(ctx, "s1", State{ChatHistory: "turn1"}); err != nil {
		t.Fatalf("Save during outage: %v", err)
	}
	st, err = store.Load(ctx, "s1")
	if err != nil || st.ChatHistory != "turn1" {
		t.Errorf("Load after save = %q, %v; want turn1", st.ChatHistory, err)
	}
	if store.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", store.Pending())
	}
	if rec.ops["load"] != 1 || rec.ops["save"] != 1 {
		t.Errorf("recorded fallbacks = %v", rec.ops)
	}

	// Unsynced local state wins even after the primary recovers.
	primary.setDown(false)
	st, _ = store.Load(ctx, "s1")
	if st.ChatHistory != "turn1" {
		t.Errorf("Load after recovery = %q, want turn1", st.ChatHistory)
	}

	// The next successful save syncs it.
	if err := store.Save(ctx, "s1", State{ChatHistory: "turn1turn2"}); err != nil {
		t.Fatalf("Save after recovery: %v", err)
	}
	if store.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", store.Pending())
	}
	if got, _ := primary.MemoryStore.Load(ctx, "s1"); got.ChatHistory != "turn1turn2" {
		t.Errorf("primary ChatHistory = %q", got.ChatHistory)
	}
}

func TestFallbackStore_LoadUsesSyncedEchoWhenDown(t *testing.T) {
	primary := newFlakyStore()
	store := NewFallbackStore(primary)
	ctx := context.Background()

	_ = store.Save(ctx, "s1", State{ChatHistory: "kept"})
	primary.setDown(true)

	st, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.ChatHistory != "kept" {
		t.Errorf("ChatHistory = %q, want kept", st.ChatHistory)
	}
}

func TestFallbackStore_OtherErrorsPropagate(t *testing.T) {
	primary := newFlakyStore()
	store := NewFallbackStore(primary)
	ctx := context.Background()

	_ = store.Save(ctx, "s1", State{ChatHistory: "good"})

	boom := errors.New("constraint violation")
	primary.mu.Lock()
	primary.err = boom
	primary.mu.Unlock()

	if err := store.Save(ctx, "s1", State{ChatHistory: "bad"}); !errors.Is(err, boom) {
		t.Fatalf("Save error = %v, want %v", err, boom)
	}
	if _, err := store.Load(ctx, "s1"); !errors.Is(err, boom) {
		t.Errorf("Load error = %v, want %v", err, boom)
	}

	primary.mu.Lock()
	primary.err = nil
	primary.mu.Unlock()

	// The rejected save left no trace.
	st, _ := store.Load(ctx, "s1")
	if st.ChatHistory != "good" {
		t.Errorf("ChatHistory = %q, want good", st.ChatHistory)
	}
}

func TestFallbackStore_ClearDuringOutage(t *testing.T) {
	primary := newFlakyStore()
	store := NewFallbackStore(primary)
	ctx := context.Background()

	_ = store.Save(ctx, "s1", State{ChatHistory: "old"})
	primary.setDown(true)

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear during outage: %v", err)
	}

	// Primary still has the old record but the cleared local entry wins.
	primary.setDown(false)
	st, _ := store.Load(ctx, "s1")
	if st.ChatHistory != "" {
		t.Errorf("ChatHistory = %q, want empty", st.ChatHistory)
	}
}
