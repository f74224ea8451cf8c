package session

import (
	"context"
	"encoding/json"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/szaher/versailles/internal/backend"
)

// EtcdStore implements Store with one etcd key per session.
type EtcdStore struct {
	kv     clientv3.KV
	prefix string
}

// NewEtcdStore creates an etcd-backed session store. kv is usually a
// *clientv3.Client.
func NewEtcdStore(kv clientv3.KV, prefix string) *EtcdStore {
	if prefix == "" {
		prefix = "/versailles/sessions/"
	}
	return &EtcdStore{kv: kv, prefix: prefix}
}

func (s *EtcdStore) key(id string) string {
	return s.prefix + id
}

// Load returns the stored state or the zero State.
func (s *EtcdStore) Load(ctx context.Context, sessionID string) (State, error) {
	resp, err := s.kv.Get(ctx, s.key(sessionID))
	if err != nil {
		return State{}, backend.Unavailable("etcd", "load", err)
	}
	if len(resp.Kvs) == 0 {
		return State{}, nil
	}
	return decodeState(resp.Kvs[0].Value)
}

// Save replaces the stored state.
func (s *EtcdStore) Save(ctx context.Context, sessionID string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if _, err := s.kv.Put(ctx, s.key(sessionID), string(data)); err != nil {
		return backend.Unavailable("etcd", "save", err)
	}
	return nil
}

// Clear deletes the stored key.
func (s *EtcdStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.kv.Delete(ctx, s.key(sessionID)); err != nil {
		return backend.Unavailable("etcd", "clear", err)
	}
	return nil
}
