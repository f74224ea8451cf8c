package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/szaher/versailles/internal/backend"
	"github.com/szaher/versailles/internal/history"
	"github.com/szaher/versailles/internal/llm"
)

// HistoryMemory forwards to a networked chat history. It mirrors every
// message it reads or writes locally; once the backend becomes unavailable
// it serves from the mirror for the rest of its life.
type HistoryMemory struct {
	history history.ChatHistory
	mirror  *Buffer
	logger  *slog.Logger

	mu       sync.Mutex
	degraded bool
}

// NewHistoryMemory wraps h.
func NewHistoryMemory(h history.ChatHistory, logger *slog.Logger) *HistoryMemory {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryMemory{history: h, mirror: NewBuffer(0), logger: logger}
}

// Key returns Key.
func (m *HistoryMemory) Key() string { return Key }

// Backend reports BackendNetworked until the backend is lost.
func (m *HistoryMemory) Backend() Backend {
	if m.isDegraded() {
		return BackendLocal
	}
	return BackendNetworked
}

// Degraded reports whether the memory has switched to its local mirror.
func (m *HistoryMemory) Degraded() bool {
	return m.isDegraded()
}

// Messages returns the networked history, or the mirror once degraded.
func (m *HistoryMemory) Messages(ctx context.Context) ([]llm.Message, error) {
	if !m.isDegraded() {
		msgs, err := m.history.Messages(ctx)
		if err == nil {
			m.mirror.replace(msgs)
			if msgs == nil {
				msgs = []llm.Message{}
			}
			return msgs, nil
		}
		if !backend.IsUnavailable(err) {
			return nil, err
		}
		m.degrade("messages", err)
	}
	return m.mirror.Messages(ctx)
}

// Append writes to the networked history and the mirror.
func (m *HistoryMemory) Append(ctx context.Context, role llm.Role, text string) error {
	msg := llm.Message{Role: role, Content: text}
	if !m.isDegraded() {
		err := m.history.Add(ctx, msg)
		if err != nil && !backend.IsUnavailable(err) {
			return err
		}
		if err != nil {
			m.degrade("append", err)
		}
	}
	m.mirror.add(msg)
	return nil
}

// Clear empties the networked history and the mirror.
func (m *HistoryMemory) Clear(ctx context.Context) error {
	if !m.isDegraded() {
		err := m.history.Clear(ctx)
		if err != nil && !backend.IsUnavailable(err) {
			return err
		}
		if err != nil {
			m.degrade("clear", err)
		}
	}
	return m.mirror.Clear(ctx)
}

func (m *HistoryMemory) isDegraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

func (m *HistoryMemory) degrade(op string, err error) {
	m.mu.Lock()
	first := !m.degraded
	m.degraded = true
	m.mu.Unlock()

	if first {
		m.logger.Warn("chat history backend lost, continuing with local memory",
			"op", op,
			"error", err,
		)
	}
}
