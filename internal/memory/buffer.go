package memory

import (
	"context"
	"sync"

	"github.com/szaher/versailles/internal/llm"
)

// Buffer is a process-local message list with optional FIFO eviction.
type Buffer struct {
	mu          sync.Mutex
	maxMessages int
	msgs        []llm.Message
}

// NewBuffer creates an empty buffer. maxMessages <= 0 keeps every message.
func NewBuffer(maxMessages int) *Buffer {
	return &Buffer{maxMessages: maxMessages}
}

// Key returns Key.
func (b *Buffer) Key() string { return Key }

// Backend returns BackendLocal.
func (b *Buffer) Backend() Backend { return BackendLocal }

// Messages returns a copy of the buffered messages.
func (b *Buffer) Messages(_ context.Context) ([]llm.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]llm.Message, len(b.msgs))
	copy(out, b.msgs)
	return out, nil
}

// Append adds a message, evicting the oldest when the window is exceeded.
func (b *Buffer) Append(_ context.Context, role llm.Role, text string) error {
	b.add(llm.Message{Role: role, Content: text})
	return nil
}

// Clear empties the buffer.
func (b *Buffer) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = nil
	return nil
}

func (b *Buffer) add(msgs ...llm.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msgs...)
	if b.maxMessages > 0 && len(b.msgs) > b.maxMessages {
		b.msgs = append([]llm.Message(nil), b.msgs[len(b.msgs)-b.maxMessages:]...)
	}
}

func (b *Buffer) replace(msgs []llm.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append([]llm.Message(nil), msgs...)
}
