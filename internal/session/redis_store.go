package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RedisClient is the subset of Redis operations the session store needs.
// backend.Redis implements it on top of go-redis.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisStore implements Store with one string key per session.
type RedisStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithPrefix sets the key prefix for session keys.
func WithPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTTL sets the key expiry; zero disables expiry.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client RedisClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "versailles:session:",
		ttl:    7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Load returns the stored state or the zero State.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (State, error) {
	data, err := s.client.Get(ctx, s.key(sessionID))
	if errors.Is(err, ErrKeyNotFound) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("redis load %q: %w", sessionID, err)
	}
	return decodeState([]byte(data))
}

// Save replaces the stored state.
func (s *RedisStore) Save(ctx context.Context, sessionID string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), string(data), s.ttl); err != nil {
		return fmt.Errorf("redis save %q: %w", sessionID, err)
	}
	return nil
}

// Clear removes the stored state.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)); err != nil {
		return fmt.Errorf("redis clear %q: %w", sessionID, err)
	}
	return nil
}
