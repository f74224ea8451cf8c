// Package session persists the per-session conversation state of the
// assistant behind a pluggable durable backend.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/szaher/versailles/internal/backend"
)

// ChatHistoryKey is the record key holding the free-text transcript.
const ChatHistoryKey = "chat_history"

var (
	// ErrBackendUnavailable marks load/save failures caused by an unreachable backend.
	ErrBackendUnavailable = backend.ErrUnavailable

	// ErrKeyNotFound is returned by key-value clients for missing keys.
	ErrKeyNotFound = backend.ErrKeyNotFound
)

// BackendError is the concrete error type behind ErrBackendUnavailable.
type BackendError = backend.Error

// State is the persisted conversation state of one session. A session that
// was never saved has the zero State: empty history, no extra fields.
type State struct {
	// ChatHistory is the accumulated transcript, oldest exchange first.
	ChatHistory string

	// Extra holds any other keys of the persisted record. They are written
	// back unchanged.
	Extra map[string]json.RawMessage
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{ChatHistory: s.ChatHistory}
	if len(s.Extra) > 0 {
		out.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// MarshalJSON encodes the state as a flat object with chat_history alongside
// the extra keys.
func (s State) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(s.Extra)+1)
	for k, v := range s.Extra {
		m[k] = v
	}
	history, err := json.Marshal(s.ChatHistory)
	if err != nil {
		return nil, err
	}
	m[ChatHistoryKey] = history
	return json.Marshal(m)
}

// UnmarshalJSON decodes a flat record, keeping unknown keys in Extra.
func (s *State) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = State{}
	if raw, ok := m[ChatHistoryKey]; ok {
		if err := json.Unmarshal(raw, &s.ChatHistory); err != nil {
			return fmt.Errorf("decode %s: %w", ChatHistoryKey, err)
		}
		delete(m, ChatHistoryKey)
	}
	if len(m) > 0 {
		s.Extra = m
	}
	return nil
}

func decodeState(data []byte) (State, error) {
	var st State
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("decode session state: %w", err)
	}
	return st, nil
}

// Store persists session state. Implementations must be safe for concurrent
// use across different session ids.
type Store interface {
	// Load returns the stored state, or the zero State if nothing is stored.
	Load(ctx context.Context, sessionID string) (State, error)

	// Save replaces the stored state.
	Save(ctx context.Context, sessionID string, state State) error

	// Clear removes the stored state.
	Clear(ctx context.Context, sessionID string) error
}
