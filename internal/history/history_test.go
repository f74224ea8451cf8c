package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/szaher/versailles/internal/backend"
	"github.com/szaher/versailles/internal/llm"
)

// mockListClient is an in-memory implementation of ListClient for testing.
type mockListClient struct {
	mu    sync.Mutex
	lists map[string][]string
	ttls  map[string]time.Duration
	err   error
}

func newMockListClient() *mockListClient {
	return &mockListClient{
		lists: make(map[string][]string),
		ttls:  make(map[string]time.Duration),
	}
}

func (m *mockListClient) RPush(ctx context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.lists[key] = append(m.lists[key], values...)
	return nil
}

func (m *mockListClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	list := m.lists[key]
	length := int64(len(list))
	if stop < 0 {
		stop = length + stop
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop {
		return nil, nil
	}
	return append([]string(nil), list[start:stop+1]...), nil
}

func (m *mockListClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, k := range keys {
		delete(m.lists, k)
	}
	return nil
}

func (m *mockListClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls[key] = ttl
	return nil
}

func TestNewRedisHistory(t *testing.T) {
	if _, err := NewRedisHistory(nil, "s1"); !errors.Is(err, backend.ErrDisabled) {
		t.Errorf("nil client error = %v, want ErrDisabled", err)
	}
	if _, err := NewRedisHistory(newMockListClient(), ""); err == nil {
		t.Error("expected error for empty session id")
	}

	h, err := NewRedisHistory(newMockListClient(), "s1")
	if err != nil {
		t.Fatalf("NewRedisHistory: %v", err)
	}
	if h.Key() != "message_store:s1" {
		t.Errorf("Key = %q, want message_store:s1", h.Key())
	}

	h, _ = NewRedisHistory(newMockListClient(), "s1", WithKeyPrefix("chat:"))
	if h.Key() != "chat:s1" {
		t.Errorf("Key = %q, want chat:s1", h.Key())
	}
}

func TestRedisHistory_AppendOrder(t *testing.T) {
	client := newMockListClient()
	h, _ := NewRedisHistory(client, "s1", WithTTL(time.Hour))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := h.Add(ctx,
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("q%d", i)},
			llm.Message{Role: llm.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	msgs, err := h.Messages(ctx)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 6 {
		t.Fatalf("got %d messages, want 6", len(msgs))
	}
	for i := 0; i < 3; i++ {
		if msgs[2*i].Content != fmt.Sprintf("q%d", i) || msgs[2*i].Role != llm.RoleUser {
			t.Errorf("msgs[%d] = %+v", 2*i, msgs[2*i])
		}
		if msgs[2*i+1].Content != fmt.Sprintf("a%d", i) || msgs[2*i+1].Role != llm.RoleAssistant {
			t.Errorf("msgs[%d] = %+v", 2*i+1, msgs[2*i+1])
		}
	}
	if client.ttls["message_store:s1"] != time.Hour {
		t.Errorf("ttl = %v, want 1h", client.ttls["message_store:s1"])
	}
}

func TestRedisHistory_SkipsUndecodable(t *testing.T) {
	client := newMockListClient()
	client.lists["message_store:s1"] = []string{`{"role":"user","content":"ok"}`, `garbage`}
	h, _ := NewRedisHistory(client, "s1")

	msgs, err := h.Messages(context.Background())
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "ok" {
		t.Errorf("Messages = %+v", msgs)
	}
}

func TestRedisHistory_EmptyIsNotNil(t *testing.T) {
	h, _ := NewRedisHistory(newMockListClient(), "s1")
	msgs, err := h.Messages(context.Background())
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if msgs == nil {
		t.Error("Messages returned nil, want empty slice")
	}
}

func TestRedisHistory_Clear(t *testing.T) {
	client := newMockListClient()
	h, _ := NewRedisHistory(client, "s1")
	ctx := context.Background()

	_ = h.Add(ctx, llm.Message{Role: llm.RoleUser, Content: "x"})
	if err := h.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	msgs, _ := h.Messages(ctx)
	if len(msgs) != 0 {
		t.Errorf("got %d messages after Clear", len(msgs))
	}
}

func TestRedisHistory_BackendErrors(t *testing.T) {
	client := newMockListClient()
	client.err = backend.Unavailable("redis", "rpush", errors.New("connection reset"))
	h, _ := NewRedisHistory(client, "s1")
	ctx := context.Background()

	if err := h.Add(ctx, llm.Message{Role: llm.RoleUser, Content: "x"}); !backend.IsUnavailable(err) {
		t.Errorf("Add error = %v, want unavailable", err)
	}
	if _, err := h.Messages(ctx); !backend.IsUnavailable(err) {
		t.Errorf("Messages error = %v, want unavailable", err)
	}
	if err := h.Clear(ctx); !backend.IsUnavailable(err) {
		t.Errorf("Clear error = %v, want unavailable", err)
	}
}
