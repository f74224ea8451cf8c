// Package tools implements the assistant's fixed tool set and the registry
// that dispatches model tool calls to it.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/szaher/versailles/internal/expr"
	"github.com/szaher/versailles/internal/llm"
)

// Recorder counts tool invocations by outcome.
type Recorder interface {
	ToolCall(tool, status string)
}

// Tool is one registered tool: its kind, description, input schema, and the
// typed handler behind it.
type Tool struct {
	Kind        Kind
	Description string
	Schema      map[string]any

	invoke func(ctx context.Context, args map[string]any) (string, error)
}

// Rule is a validation expression over the JSON field names of a tool input.
type Rule struct {
	Expr    string
	Message string
}

// defaulter is implemented by inputs that fill optional fields.
type defaulter interface {
	applyDefaults()
}

// NewTool builds a tool whose arguments decode into T. Rules are compiled
// against T's fields and checked before run is called.
func NewTool[T any](kind Kind, description string, rules []Rule, run func(ctx context.Context, in *T) (string, error)) (*Tool, error) {
	var zero T
	env := fieldsOf(&zero)
	compiled := make([]*expr.Rule, 0, len(rules))
	for _, r := range rules {
		c, err := expr.Compile(r.Expr, r.Message, env)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", kind, err)
		}
		compiled = append(compiled, c)
	}

	t := &Tool{
		Kind:        kind,
		Description: description,
		Schema:      inputSchema[T](),
	}
	t.invoke = func(ctx context.Context, args map[string]any) (string, error) {
		in := new(T)
		if err := decodeInput(args, in); err != nil {
			return "", err
		}
		if d, ok := any(in).(defaulter); ok {
			d.applyDefaults()
		}
		fields := fieldsOf(in)
		for _, c := range compiled {
			if err := c.Check(fields); err != nil {
				return "", &InputError{Err: err}
			}
		}
		return run(ctx, in)
	}
	return t, nil
}

// Definition returns the model-facing description of the tool.
func (t *Tool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        string(t.Kind),
		Description: t.Description,
		InputSchema: t.Schema,
	}
}

// Registry holds the tools and dispatches calls to them.
type Registry struct {
	mu       sync.RWMutex
	tools    map[Kind]*Tool
	logger   *slog.Logger
	recorder Recorder
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithRecorder sets the metrics sink for tool calls.
func WithRecorder(rec Recorder) RegistryOption {
	return func(r *Registry) { r.recorder = rec }
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[Kind]*Tool),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Only known kinds are accepted and each kind at most once.
func (r *Registry) Register(t *Tool) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown tool kind %q", t.Kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Kind]; dup {
		return fmt.Errorf("tool %q already registered", t.Kind)
	}
	r.tools[t.Kind] = t
	return nil
}

// Lookup returns the tool of kind k.
func (r *Registry) Lookup(k Kind) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[k]
	return t, ok
}

// Definitions returns the registered tools in Kinds order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, k := range Kinds {
		if t, ok := r.tools[k]; ok {
			defs = append(defs, t.Definition())
		}
	}
	return defs
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for k := range r.tools {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}

// Invoke runs a tool call and returns its text result. Input and service
// failures are rendered as text on the same channel as results; Invoke
// itself never fails.
func (r *Registry) Invoke(ctx context.Context, call llm.ToolCall) string {
	t, ok := r.Lookup(Kind(call.Name))
	if !ok {
		r.record(call.Name, "unknown")
		return fmt.Sprintf("Outil inconnu : %s", call.Name)
	}

	args := call.Input
	if args == nil {
		args = map[string]any{}
	}
	out, err := t.invoke(ctx, args)
	switch {
	case err == nil:
		r.record(call.Name, "ok")
		return out
	case errors.Is(err, ErrMalformedInput):
		r.record(call.Name, "malformed")
	case errors.Is(err, ErrCallFailed):
		r.record(call.Name, "failed")
	default:
		r.record(call.Name, "failed")
		err = callFailed(string(t.Kind), err)
	}
	r.logger.WarnContext(ctx, "tool call failed", "tool", call.Name, "error", err)
	return err.Error()
}

// InvokeAll runs calls concurrently and returns their results in call order.
func (r *Registry) InvokeAll(ctx context.Context, calls []llm.ToolCall) []llm.ToolResult {
	results := make([]llm.ToolResult, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc llm.ToolCall) {
			defer wg.Done()
			results[idx] = llm.ToolResult{
				ToolUseID: tc.ID,
				Content:   r.Invoke(ctx, tc),
			}
		}(i, call)
	}

	wg.Wait()
	return results
}

func (r *Registry) record(tool, status string) {
	if r.recorder != nil {
		r.recorder.ToolCall(tool, status)
	}
}
