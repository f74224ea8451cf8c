package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// FallbackRecorder counts store operations served by the local echo.
type FallbackRecorder interface {
	StoreFallback(op string)
}

// FallbackStore wraps a primary Store with a process-local echo of every
// saved state. When the primary is unavailable the echo keeps the session
// usable for the life of the process; entries that never reached the primary
// are marked unsynced and win over the primary on Load.
type FallbackStore struct {
	primary  Store
	logger   *slog.Logger
	recorder FallbackRecorder

	mu   sync.Mutex
	echo map[string]echoEntry
	gen  uint64
}

type echoEntry struct {
	state  State
	synced bool
	gen    uint64
}

// FallbackOption configures a FallbackStore.
type FallbackOption func(*FallbackStore)

// WithFallbackLogger sets the logger used for degradation warnings.
func WithFallbackLogger(l *slog.Logger) FallbackOption {
	return func(s *FallbackStore) { s.logger = l }
}

// WithFallbackRecorder sets the metrics sink for fallbacks.
func WithFallbackRecorder(r FallbackRecorder) FallbackOption {
	return func(s *FallbackStore) { s.recorder = r }
}

// NewFallbackStore wraps primary.
func NewFallbackStore(primary Store, opts ...FallbackOption) *FallbackStore {
	s := &FallbackStore{
		primary: primary,
		logger:  slog.Default(),
		echo:    make(map[string]echoEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns unsynced local state if present, otherwise the primary's
// state, otherwise the last echoed state.
func (s *FallbackStore) Load(ctx context.Context, sessionID string) (State, error) {
	s.mu.Lock()
	entry, ok := s.echo[sessionID]
	s.mu.Unlock()
	if ok && !entry.synced {
		return entry.state.Clone(), nil
	}

	st, err := s.primary.Load(ctx, sessionID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrBackendUnavailable) {
		return State{}, err
	}

	s.degraded("load", sessionID, err)
	if ok {
		return entry.state.Clone(), nil
	}
	return State{}, nil
}

// Save records the state locally, then writes it to the primary. Primary
// unavailability is logged and tolerated; other primary errors restore the
// previous local entry and are returned.
func (s *FallbackStore) Save(ctx context.Context, sessionID string, state State) error {
	s.mu.Lock()
	prev, hadPrev := s.echo[sessionID]
	s.gen++
	gen := s.gen
	s.echo[sessionID] = echoEntry{state: state.Clone(), gen: gen}
	s.mu.Unlock()

	err := s.primary.Save(ctx, sessionID, state)
	switch {
	case err == nil:
		s.markSynced(sessionID, gen)
		return nil
	case errors.Is(err, ErrBackendUnavailable):
		s.degraded("save", sessionID, err)
		return nil
	default:
		s.mu.Lock()
		if cur, ok := s.echo[sessionID]; ok && cur.gen == gen {
			if hadPrev {
				s.echo[sessionID] = prev
			} else {
				delete(s.echo, sessionID)
			}
		}
		s.mu.Unlock()
		return err
	}
}

// Clear empties the local entry and removes the primary record.
func (s *FallbackStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.echo[sessionID] = echoEntry{gen: gen}
	s.mu.Unlock()

	err := s.primary.Clear(ctx, sessionID)
	switch {
	case err == nil:
		s.mu.Lock()
		if cur, ok := s.echo[sessionID]; ok && cur.gen == gen {
			delete(s.echo, sessionID)
		}
		s.mu.Unlock()
		return nil
	case errors.Is(err, ErrBackendUnavailable):
		s.degraded("clear", sessionID, err)
		return nil
	default:
		return err
	}
}

// Pending returns the number of sessions whose latest state has not reached
// the primary.
func (s *FallbackStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.echo {
		if !e.synced {
			n++
		}
	}
	return n
}

func (s *FallbackStore) markSynced(sessionID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.echo[sessionID]; ok && cur.gen == gen {
		cur.synced = true
		s.echo[sessionID] = cur
	}
}

func (s *FallbackStore) degraded(op, sessionID string, err error) {
	s.logger.Warn("session store unavailable, using local state",
		"op", op,
		"session_id", sessionID,
		"error", err,
	)
	if s.recorder != nil {
		s.recorder.StoreFallback(op)
	}
}
