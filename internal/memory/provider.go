package memory

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/szaher/versailles/internal/backend"
	"github.com/szaher/versailles/internal/history"
)

// HistoryFactory builds the networked chat history of a session.
type HistoryFactory func(sessionID string) (history.ChatHistory, error)

// Recorder counts which backend served each memory request.
type Recorder interface {
	MemoryBackend(backend string)
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// Status is the result of the start-up probe. It is never re-evaluated.
	Status backend.Status

	// Factory builds networked histories. Nil forces local memory.
	Factory HistoryFactory

	// BufferSize caps local buffers; zero keeps every message.
	BufferSize int

	Logger   *slog.Logger
	Recorder Recorder
}

// Provider hands out a ConversationMemory per session.
type Provider struct {
	cfg   ProviderConfig
	group singleflight.Group
}

// NewProvider creates a Provider. The networked path is only ever attempted
// when cfg.Status reports the backend reachable.
func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Factory == nil {
		cfg.Status.Reachable = false
	}
	return &Provider{cfg: cfg}
}

// Networked reports whether the provider uses the networked backend.
func (p *Provider) Networked() bool {
	return p.cfg.Status.Reachable
}

// Status returns the start-up probe result.
func (p *Provider) Status() backend.Status {
	return p.cfg.Status
}

// GetMemory returns the memory of sessionID. It never fails: any problem
// building the networked memory yields a fresh local buffer.
func (p *Provider) GetMemory(ctx context.Context, sessionID string) ConversationMemory {
	if p.cfg.Status.Reachable {
		h, err := p.history(sessionID)
		if err == nil {
			p.record(BackendNetworked)
			return NewHistoryMemory(h, p.cfg.Logger.With("session_id", sessionID))
		}
		p.cfg.Logger.WarnContext(ctx, "networked memory unavailable, using local buffer",
			"session_id", sessionID,
			"error", err,
		)
	}
	p.record(BackendLocal)
	return NewBuffer(p.cfg.BufferSize)
}

// ClearHistory clears the networked history of sessionID. It is a no-op
// when the networked backend is not in use.
func (p *Provider) ClearHistory(ctx context.Context, sessionID string) error {
	if !p.cfg.Status.Reachable {
		return nil
	}
	h, err := p.history(sessionID)
	if err != nil {
		return err
	}
	return h.Clear(ctx)
}

func (p *Provider) history(sessionID string) (history.ChatHistory, error) {
	v, err, _ := p.group.Do(sessionID, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("build chat history: %v", r)
			}
		}()
		h, err := p.cfg.Factory(sessionID)
		if err == nil && h == nil {
			err = fmt.Errorf("build chat history: factory returned nil")
		}
		return h, err
	})
	if err != nil {
		return nil, err
	}
	return v.(history.ChatHistory), nil
}

func (p *Provider) record(b Backend) {
	if p.cfg.Recorder != nil {
		p.cfg.Recorder.MemoryBackend(string(b))
	}
}
