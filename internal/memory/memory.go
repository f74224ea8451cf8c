// Package memory provides the per-turn conversation memory handed to the
// agent, backed either by a networked chat history or a local buffer.
package memory

import (
	"context"

	"github.com/szaher/versailles/internal/llm"
)

// Key is the memory key under which the transcript is exposed.
const Key = "chat_history"

// Backend identifies where a memory object keeps its messages.
type Backend string

const (
	BackendNetworked Backend = "networked"
	BackendLocal     Backend = "local"
)

// ConversationMemory is the structured message history of one session.
type ConversationMemory interface {
	// Key returns the memory key, always Key.
	Key() string

	// Backend reports where messages are kept.
	Backend() Backend

	// Messages returns the history in append order. It never returns nil.
	Messages(ctx context.Context) ([]llm.Message, error)

	// Append adds one message.
	Append(ctx context.Context, role llm.Role, text string) error

	// Clear removes every message.
	Clear(ctx context.Context) error
}
