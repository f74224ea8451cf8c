package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	client := newFakeS3()
	store := NewS3Store(client, "bucket", "")
	ctx := context.Background()

	st, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if st.ChatHistory != "" {
		t.Errorf("ChatHistory = %q, want empty", st.ChatHistory)
	}

	if err := store.Save(ctx, "s1", State{ChatHistory: "hi"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := client.objects["sessions/s1.json"]; !ok {
		t.Fatal("object not written at sessions/s1.json")
	}

	st, err = store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.ChatHistory != "hi" {
		t.Errorf("ChatHistory = %q, want hi", st.ChatHistory)
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(client.objects) != 0 {
		t.Error("object still present after Clear")
	}
}

func TestS3Store_ErrorClassification(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantUnavailable bool
	}{
		{"transport", errors.New("dial tcp: i/o timeout"), true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeS3()
			client.err = tt.err
			store := NewS3Store(client, "bucket", "p/")

			err := store.Save(context.Background(), "s1", State{})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrBackendUnavailable); got != tt.wantUnavailable {
				t.Errorf("unavailable = %v, want %v", got, tt.wantUnavailable)
			}
		})
	}
}
