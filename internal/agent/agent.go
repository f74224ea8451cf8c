// Package agent implements the tool-using generator behind each turn: a
// reason-act-observe loop over a model client and the tool registry.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/szaher/versailles/internal/llm"
)

// DefaultMaxIterations bounds the model rounds of one generation.
const DefaultMaxIterations = 5

const defaultMaxTokens = 1024

// ErrIterationLimit is returned when the model still requests tools after the
// last allowed round and has produced no text.
var ErrIterationLimit = errors.New("agent stopped after reaching the iteration limit")

// DefaultSystemPrompt is the reservation prompt used when none is configured.
const DefaultSystemPrompt = `Tu es l'assistant de visite du Château de Versailles.
Tu aides les visiteurs à préparer leur venue : billets, horaires, transports,
météo, itinéraires et hébergement.

Règles :
- Réponds dans la langue du visiteur, de façon concise et chaleureuse.
- Utilise les outils pour toute information factuelle (horaires, disponibilités,
  prix, météo, trajets) plutôt que de l'inventer.
- Avant toute réservation, vérifie la disponibilité puis récapitule la date, le
  nombre de personnes et le nom, et demande confirmation.
- Si un outil renvoie une erreur, explique-la simplement et propose une alternative.`

// ToolExecutor exposes the tools offered to the model and runs its calls.
type ToolExecutor interface {
	Definitions() []llm.ToolDefinition
	InvokeAll(ctx context.Context, calls []llm.ToolCall) []llm.ToolResult
}

// ToolCallRecord is an audit record of a single tool invocation.
type ToolCallRecord struct {
	ID       string         `json:"id"`
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"input"`
	Output   string         `json:"output"`
}

// Response is the result of one generation.
type Response struct {
	Output    string           `json:"output"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Tokens    llm.TokenUsage   `json:"tokens"`
	Turns     int              `json:"turns"`
	Duration  time.Duration    `json:"duration"`
}

// Config holds the model parameters of the agent.
type Config struct {
	Model         string
	System        string
	MaxIterations int
	MaxTokens     int
	Temperature   *float64
}

// Agent is a tool-using generator. It is safe for concurrent use.
type Agent struct {
	client llm.Client
	tools  ToolExecutor
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	system string
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the agent logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an agent. A nil tools executor offers no tools.
func New(client llm.Client, tools ToolExecutor, cfg Config, opts ...Option) *Agent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.System == "" {
		cfg.System = DefaultSystemPrompt
	}
	a := &Agent{
		client: client,
		tools:  tools,
		cfg:    cfg,
		logger: slog.Default(),
		system: cfg.System,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetSystem replaces the system prompt used by subsequent generations.
func (a *Agent) SetSystem(system string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.system = system
}

// System returns the current system prompt.
func (a *Agent) System() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.system
}

// Generate answers prompt given the prior conversation and returns the text.
func (a *Agent) Generate(ctx context.Context, prompt string, history []llm.Message) (string, error) {
	resp, err := a.Run(ctx, prompt, history)
	if err != nil {
		return "", err
	}
	return resp.Output, nil
}

// Run executes the loop: reason, act, observe, until the model stops
// requesting tools or the iteration limit is reached.
func (a *Agent) Run(ctx context.Context, prompt string, history []llm.Message) (*Response, error) {
	start := time.Now()

	messages := make([]llm.Message, len(history), len(history)+1)
	copy(messages, history)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	var defs []llm.ToolDefinition
	if a.tools != nil {
		defs = a.tools.Definitions()
	}
	system := a.System()

	var (
		records  []ToolCallRecord
		usage    llm.TokenUsage
		output   string
		turns    int
		finished bool
	)
	for turn := 0; turn < a.cfg.MaxIterations; turn++ {
		turns++
		resp, err := a.client.Chat(ctx, llm.ChatRequest{
			Model:       a.cfg.Model,
			Messages:    messages,
			System:      system,
			Tools:       defs,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("agent: turn %d: %w", turn+1, err)
		}
		usage = usage.Add(resp.Usage)
		if resp.Content != "" {
			output = resp.Content
		}

		if len(resp.ToolCalls) == 0 || resp.StopReason != llm.StopToolUse || a.tools == nil {
			finished = true
			break
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		results := a.tools.InvokeAll(ctx, resp.ToolCalls)
		for i, result := range results {
			tc := resp.ToolCalls[i]
			records = append(records, ToolCallRecord{
				ID:       tc.ID,
				ToolName: tc.Name,
				Input:    tc.Input,
				Output:   result.Content,
			})
			a.logger.DebugContext(ctx, "tool call", "tool", tc.Name, "id", tc.ID)
			messages = append(messages, llm.Message{
				Role:       llm.RoleUser,
				ToolResult: &result,
			})
		}
	}

	if !finished && output == "" {
		return nil, fmt.Errorf("agent: %w (%d)", ErrIterationLimit, a.cfg.MaxIterations)
	}

	return &Response{
		Output:    output,
		ToolCalls: records,
		Tokens:    usage,
		Turns:     turns,
		Duration:  time.Since(start),
	}, nil
}
