// Package orchestrator runs conversation turns: it loads the session state,
// builds the prompt, calls the generator, and persists the exchange.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/szaher/versailles/internal/llm"
	"github.com/szaher/versailles/internal/memory"
	"github.com/szaher/versailles/internal/session"
)

const (
	// DefaultContextWindow is the number of transcript runes injected into a prompt.
	DefaultContextWindow = 500

	// DefaultGenerateTimeout bounds one generation.
	DefaultGenerateTimeout = 60 * time.Second
)

var (
	// ErrGeneration marks failures of the generator.
	ErrGeneration = errors.New("generation failed")

	// ErrGenerationTimeout marks generations that exceeded their deadline.
	// The turn can be retried.
	ErrGenerationTimeout = errors.New("generation timed out")
)

// GenerationError wraps a generator failure. Its message is the underlying
// error's.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return e.Err.Error() }

func (e *GenerationError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

// Generator produces the response to a prompt given the prior conversation.
type Generator interface {
	Generate(ctx context.Context, prompt string, history []llm.Message) (string, error)
}

// MemoryProvider hands out per-session conversation memory.
type MemoryProvider interface {
	GetMemory(ctx context.Context, sessionID string) memory.ConversationMemory
	ClearHistory(ctx context.Context, sessionID string) error
}

// Recorder receives turn outcomes.
type Recorder interface {
	Turn(status string, d time.Duration)
}

// Turn statuses reported to the Recorder.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Reply is the outcome of one turn. Text is always displayable: the
// response, or the error prefix and cause.
type Reply struct {
	TurnID    string
	SessionID string
	Text      string
	Backend   memory.Backend
	Err       error
	Duration  time.Duration
}

// Orchestrator runs turns and resets sessions. It is safe for concurrent
// use; turns on one session are serialised.
type Orchestrator struct {
	store    session.Store
	memory   MemoryProvider
	gen      Generator
	locker   *session.Locker
	labels   Labels
	window   int
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLabels sets the label set.
func WithLabels(l Labels) Option {
	return func(o *Orchestrator) { o.labels = l }
}

// WithGenerateTimeout bounds each generation.
func WithGenerateTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithContextWindow sets how many transcript runes are injected into prompts.
func WithContextWindow(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.window = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLocker shares a Locker with other components.
func WithLocker(l *session.Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// New creates an Orchestrator.
func New(store session.Store, provider MemoryProvider, gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		memory:  provider,
		gen:     gen,
		labels:  FrenchLabels,
		window:  DefaultContextWindow,
		timeout: DefaultGenerateTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.locker == nil {
		o.locker = session.NewLocker()
	}
	return o
}

// Labels returns the label set in use.
func (o *Orchestrator) Labels() Labels { return o.labels }

// RunTurn answers message in the session and persists the exchange. Errors
// are reported in the reply, never returned; a failed turn persists nothing.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, message string) Reply {
	start := time.Now()
	reply := Reply{TurnID: ulid.Make().String(), SessionID: sessionID}
	log := o.logger.With("session_id", sessionID, "turn_id", reply.TurnID)

	text, backend, err := o.turn(ctx, log, sessionID, message)
	reply.Duration = time.Since(start)
	reply.Backend = backend

	status := StatusOK
	if err != nil {
		status = StatusError
		reply.Err = err
		reply.Text = o.labels.ErrorPrefix + ": " + err.Error()
		if errors.Is(err, ErrGenerationTimeout) {
			status = StatusTimeout
			reply.Text = o.labels.ErrorPrefix + ": " + o.labels.TimeoutText
		}
		log.ErrorContext(ctx, "turn failed", "phase", "failed", "error", err, "duration", reply.Duration)
	} else {
		reply.Text = text
		log.InfoContext(ctx, "turn completed", "backend", string(backend), "duration", reply.Duration)
	}
	if o.recorder != nil {
		o.recorder.Turn(status, reply.Duration)
	}
	return reply
}

func (o *Orchestrator) turn(ctx context.Context, log *slog.Logger, sessionID, message string) (string, memory.Backend, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return "", "", err
	}
	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		return "", "", fmt.Errorf("acquire session lock: %w", err)
	}
	defer unlock()

	log.DebugContext(ctx, "turn phase", "phase", "loading")
	state, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return "", "", fmt.Errorf("load session: %w", err)
	}
	mem := o.memory.GetMemory(ctx, sessionID)
	history, err := mem.Messages(ctx)
	if err != nil {
		log.WarnContext(ctx, "memory read failed, continuing without history", "error", err)
		history = nil
	}

	log.DebugContext(ctx, "turn phase", "phase", "prompting")
	prompt := o.labels.BuildPrompt(state.ChatHistory, message, o.window)

	log.DebugContext(ctx, "turn phase", "phase", "generating", "backend", string(mem.Backend()))
	response, err := o.generate(ctx, prompt, history)
	if err != nil {
		return "", mem.Backend(), err
	}

	log.DebugContext(ctx, "turn phase", "phase", "persisting")
	next := state.Clone()
	next.ChatHistory = o.labels.AppendExchange(state.ChatHistory, message, response)
	if err := o.store.Save(ctx, sessionID, next); err != nil {
		return "", mem.Backend(), fmt.Errorf("save session: %w", err)
	}
	if err := mem.Append(ctx, llm.RoleUser, message); err != nil {
		log.WarnContext(ctx, "memory append failed", "role", string(llm.RoleUser), "error", err)
	} else if err := mem.Append(ctx, llm.RoleAssistant, response); err != nil {
		log.WarnContext(ctx, "memory append failed", "role", string(llm.RoleAssistant), "error", err)
	}

	log.DebugContext(ctx, "turn phase", "phase", "idle")
	return response, mem.Backend(), nil
}

// generate runs the generator under the turn timeout. The deadline holds
// even when the generator ignores its context.
func (o *Orchestrator) generate(ctx context.Context, prompt string, history []llm.Message) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := o.gen.Generate(genCtx, prompt, history)
		done <- result{text, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-genCtx.Done():
		res.err = genCtx.Err()
	}
	if res.err == nil {
		return res.text, nil
	}
	if ctx.Err() == nil && errors.Is(genCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s", ErrGenerationTimeout, o.timeout)
	}
	return "", &GenerationError{Err: res.err}
}

// ResetSession clears the session's networked history and its stored
// transcript. Extra state fields are kept. Only the store error is returned;
// history clearing is best-effort.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	defer unlock()

	log := o.logger.With("session_id", sessionID)
	var g errgroup.Group
	g.Go(func() error {
		if err := o.memory.ClearHistory(ctx, sessionID); err != nil {
			log.WarnContext(ctx, "clear chat history failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		state, err := o.store.Load(ctx, sessionID)
		if err != nil {
			log.WarnContext(ctx, "load before reset failed, resetting extra fields too", "error", err)
			state = session.State{}
		}
		state.ChatHistory = ""
		if err := o.store.Save(ctx, sessionID, state); err != nil {
			return fmt.Errorf("reset session: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.InfoContext(ctx, "session reset")
	return nil
}

// State returns the stored state of a session.
func (o *Orchestrator) State(ctx context.Context, sessionID string) (session.State, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return session.State{}, err
	}
	return o.store.Load(ctx, sessionID)
}
