// Package mcp exposes the assistant's tools over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"

	"github.com/szaher/versailles/internal/llm"
)

// ServerName is the implementation name announced to clients.
const ServerName = "versailles-tools"

// Invoker runs tools by name and renders every outcome, including failures,
// as text.
type Invoker interface {
	Definitions() []llm.ToolDefinition
	Invoke(ctx context.Context, call llm.ToolCall) string
}

// Server serves an Invoker's tools to MCP clients.
type Server struct {
	server *mcpsdk.Server
	tools  Invoker
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer registers every tool of tools on a new MCP server.
func NewServer(tools Invoker, version string, opts ...Option) *Server {
	s := &Server{
		server: mcpsdk.NewServer(&mcpsdk.Implementation{Name: ServerName, Version: version}, nil),
		tools:  tools,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, def := range tools.Definitions() {
		s.server.AddTool(&mcpsdk.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}, s.handler(def.Name))
	}
	return s
}

func (s *Server) handler(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		input := map[string]any{}
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				return textResult(fmt.Sprintf("Erreur %s : arguments JSON invalides (%v)", name, err)), nil
			}
		}
		call := llm.ToolCall{ID: "mcp-" + ulid.Make().String(), Name: name, Input: input}
		s.logger.DebugContext(ctx, "mcp tool call", "tool", name, "call_id", call.ID)
		return textResult(s.tools.Invoke(ctx, call)), nil
	}
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}

// Connect serves one session over t. It returns once the session is
// initialised; the session runs until the transport closes.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// RunStdio serves a single client on stdin/stdout until it disconnects or
// ctx is done.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.InfoContext(ctx, "mcp server starting", "transport", "stdio", "tools", len(s.tools.Definitions()))
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}
