// Package history provides session-scoped chat message history on a
// networked backend.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/szaher/versailles/internal/backend"
	"github.com/szaher/versailles/internal/llm"
)

// ChatHistory is the ordered message list of one session.
type ChatHistory interface {
	// Messages returns every stored message, oldest first.
	Messages(ctx context.Context) ([]llm.Message, error)

	// Add appends messages in order.
	Add(ctx context.Context, msgs ...llm.Message) error

	// Clear removes every message.
	Clear(ctx context.Context) error
}

// ListClient is the subset of Redis list operations RedisHistory needs.
// backend.Redis implements it.
type ListClient interface {
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// DefaultKeyPrefix is the Redis key prefix for message lists.
const DefaultKeyPrefix = "message_store:"

// RedisHistory stores JSON-encoded messages in a Redis list keyed by session.
type RedisHistory struct {
	client    ListClient
	sessionID string
	prefix    string
	ttl       time.Duration
}

// Option configures a RedisHistory.
type Option func(*RedisHistory)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(h *RedisHistory) { h.prefix = prefix }
}

// WithTTL refreshes the list expiry on every append. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(h *RedisHistory) { h.ttl = ttl }
}

// NewRedisHistory returns the history of sessionID.
func NewRedisHistory(client ListClient, sessionID string, opts ...Option) (*RedisHistory, error) {
	if client == nil {
		return nil, fmt.Errorf("redis history: %w", backend.ErrDisabled)
	}
	if sessionID == "" {
		return nil, errors.New("redis history: empty session id")
	}
	h := &RedisHistory{client: client, sessionID: sessionID, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Key returns the Redis key of the message list.
func (h *RedisHistory) Key() string {
	return h.prefix + h.sessionID
}

// Messages returns every stored message, oldest first. Entries that cannot be
// decoded are skipped.
func (h *RedisHistory) Messages(ctx context.Context) ([]llm.Message, error) {
	items, err := h.client.LRange(ctx, h.Key(), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	msgs := make([]llm.Message, 0, len(items))
	for _, item := range items {
		var m llm.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Add appends messages to the list.
func (h *RedisHistory) Add(ctx context.Context, msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]string, len(msgs))
	for i, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values[i] = string(data)
	}
	if err := h.client.RPush(ctx, h.Key(), values...); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if h.ttl > 0 {
		if err := h.client.Expire(ctx, h.Key(), h.ttl); err != nil {
			return fmt.Errorf("expire history: %w", err)
		}
	}
	return nil
}

// Clear deletes the list.
func (h *RedisHistory) Clear(ctx context.Context) error {
	if err := h.client.Del(ctx, h.Key()); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
