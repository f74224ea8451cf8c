package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreLoadEmpty(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		st, err := store.Load(ctx, "never-saved")
		if err != nil {
			t.Fatalf("Load returned unexpected error: %v", err)
		}
		if st.ChatHistory != "" {
			t.Errorf("ChatHistory = %q, want empty", st.ChatHistory)
		}
		if st.Extra != nil {
			t.Errorf("Extra = %v, want nil", st.Extra)
		}
	}
	if store.Len() != 0 {
		t.Errorf("Load created %d records, want 0", store.Len())
	}
}

func TestMemoryStoreSaveLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	in := State{
		ChatHistory: "\nUtilisateur : Bonjour\nAgent : Salut",
		Extra:       map[string]json.RawMessage{"lang": json.RawMessage(`"fr"`)},
	}
	if err := store.Save(ctx, "s1", in); err != nil {
		t.Fatalf("Save returned unexpected error: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	in.Extra["lang"] = json.RawMessage(`"en"`)

	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}
	if got.ChatHistory != "\nUtilisateur : Bonjour\nAgent : Salut" {
		t.Errorf("ChatHistory = %q", got.ChatHistory)
	}
	if string(got.Extra["lang"]) != `"fr"` {
		t.Errorf("Extra[lang] = %s, want \"fr\"", got.Extra["lang"])
	}
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Save(ctx, "s1", State{ChatHistory: "x"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ChatHistory != "" {
		t.Errorf("ChatHistory after Clear = %q, want empty", got.ChatHistory)
	}

	// Clearing an unknown session is not an error.
	if err := store.Clear(ctx, "unknown"); err != nil {
		t.Errorf("Clear unknown: %v", err)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Save(ctx, "old", State{ChatHistory: "a"})
	_ = store.Save(ctx, "new", State{ChatHistory: "b"})

	store.mu.Lock()
	rec := store.sessions["old"]
	rec.updatedAt = time.Now().Add(-2 * time.Hour)
	store.sessions["old"] = rec
	store.mu.Unlock()

	removed, err := store.Sweep(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", n)
			if err := store.Save(ctx, id, State{ChatHistory: id}); err != nil {
				t.Errorf("Save: %v", err)
			}
			if _, err := store.Load(ctx, id); err != nil {
				t.Errorf("Load: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if store.Len() != 20 {
		t.Errorf("Len = %d, want 20", store.Len())
	}
}

func TestStateJSONKeepsExtraKeys(t *testing.T) {
	raw := `{"chat_history":"hello","visitor":{"name":"Ana"},"count":3}`

	st, err := decodeState([]byte(raw))
	if err != nil {
		t.Fatalf("decodeState: %v", err)
	}
	if st.ChatHistory != "hello" {
		t.Errorf("ChatHistory = %q, want hello", st.ChatHistory)
	}
	if len(st.Extra) != 2 {
		t.Fatalf("Extra has %d keys, want 2", len(st.Extra))
	}

	out, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["chat_history"] != "hello" {
		t.Errorf("chat_history = %v", m["chat_history"])
	}
	if m["count"] != float64(3) {
		t.Errorf("count = %v, want 3", m["count"])
	}
	if _, ok := m["visitor"].(map[string]any); !ok {
		t.Errorf("visitor = %v, want object", m["visitor"])
	}
}

func TestStateJSONEmpty(t *testing.T) {
	out, err := json.Marshal(State{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"chat_history":""}` {
		t.Errorf("Marshal(State{}) = %s", out)
	}

	st, err := decodeState(nil)
	if err != nil {
		t.Fatalf("decodeState(nil): %v", err)
	}
	if st.ChatHistory != "" || st.Extra != nil {
		t.Errorf("decodeState(nil) = %+v, want zero", st)
	}

	if _, err := decodeState([]byte(`{"chat_history": 12}`)); err == nil {
		t.Error("expected error for non-string chat_history")
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "s1", false},
		{"uuid", NewID(), false},
		{"unicode", "visite-château", false},
		{"empty", "", true},
		{"control", "a\nb", true},
		{"too long", string(make([]byte, 300)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidID) {
				t.Errorf("ValidateID(%q) error = %v, want ErrInvalidID", tt.id, err)
			}
		})
	}
}
