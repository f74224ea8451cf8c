package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// fakeKV implements the Get/Put/Delete part of clientv3.KV over a map.
type fakeKV struct {
	clientv3.KV

	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	resp := &clientv3.GetResponse{}
	if v, ok := f.data[key]; ok {
		resp.Kvs = []*mvccpb.KeyValue{{Key: []byte(key), Value: []byte(v)}}
		resp.Count = 1
	}
	return resp, nil
}

func (f *fakeKV) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.data[key] = val
	return &clientv3.PutResponse{}, nil
}

func (f *fakeKV) Delete(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.data, key)
	return &clientv3.DeleteResponse{}, nil
}

func TestEtcdStore_RoundTrip(t *testing.T) {
	kv := newFakeKV()
	store := NewEtcdStore(kv, "")
	ctx := context.Background()

	st, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if st.ChatHistory != "" {
		t.Errorf("ChatHistory = %q, want empty", st.ChatHistory)
	}

	if err := store.Save(ctx, "s1", State{ChatHistory: "abc"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := kv.data["/versailles/sessions/s1"]; !ok {
		t.Fatal("key not written under default prefix")
	}

	st, err = store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.ChatHistory != "abc" {
		t.Errorf("ChatHistory = %q, want abc", st.ChatHistory)
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(kv.data) != 0 {
		t.Errorf("data = %v, want empty", kv.data)
	}
}

func TestEtcdStore_Unavailable(t *testing.T) {
	kv := newFakeKV()
	kv.err = context.DeadlineExceeded
	store := NewEtcdStore(kv, "/x/")

	if _, err := store.Load(context.Background(), "s1"); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Load error = %v, want ErrBackendUnavailable", err)
	}
	if err := store.Save(context.Background(), "s1", State{}); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Save error = %v, want ErrBackendUnavailable", err)
	}
	if err := store.Clear(context.Background(), "s1"); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Clear error = %v, want ErrBackendUnavailable", err)
	}
}
