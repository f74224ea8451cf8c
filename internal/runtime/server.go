package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/szaher/versailles/internal/auth"
	"github.com/szaher/versailles/internal/frontend"
	"github.com/szaher/versailles/internal/orchestrator"
	"github.com/szaher/versailles/internal/session"
	"github.com/szaher/versailles/internal/telemetry"
)

// Version is reported by the health endpoint and the CLI.
var Version = "0.1.0"

const (
	maxRequestBody    = 64 << 10
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Conversations is the turn surface the server exposes.
type Conversations interface {
	RunTurn(ctx context.Context, sessionID, message string) orchestrator.Reply
	ResetSession(ctx context.Context, sessionID string) error
	State(ctx context.Context, sessionID string) (session.State, error)
}

// Snapshot is the runtime view reported by /healthz.
type Snapshot struct {
	Memory      string `json:"memory"`
	Store       string `json:"store"`
	Backend     string `json:"backend"`
	PendingSync int    `json:"pending_sync"`
}

// Server is the HTTP surface of the assistant.
type Server struct {
	conv      Conversations
	mux       *http.ServeMux
	server    *http.Server
	logger    *slog.Logger
	startTime time.Time

	apiKey    string
	noAuth    bool
	rateLimit auth.RateLimitConfig
	ui        bool
	metrics   http.Handler
	snapshot  func() Snapshot
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithNoAuth disables authentication.
func WithNoAuth(noAuth bool) ServerOption {
	return func(s *Server) { s.noAuth = noAuth }
}

// WithRateLimit limits API requests per client.
func WithRateLimit(cfg auth.RateLimitConfig) ServerOption {
	return func(s *Server) { s.rateLimit = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithUI serves the chat page under /ui/.
func WithUI(enabled bool) ServerOption {
	return func(s *Server) { s.ui = enabled }
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithSnapshot adds runtime details to /healthz.
func WithSnapshot(f func() Snapshot) ServerOption {
	return func(s *Server) { s.snapshot = f }
}

// NewServer creates the HTTP server.
func NewServer(conv Conversations, opts ...ServerOption) *Server {
	s := &Server{
		conv:      conv,
		logger:    slog.Default(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	limiter := auth.NewRateLimiter(s.rateLimit)
	limit := limiter.Middleware(auth.ClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("POST /v1/sessions/{id}/messages", limit(http.HandlerFunc(s.handleMessage)))
	mux.Handle("GET /v1/sessions/{id}", limit(http.HandlerFunc(s.handleGetSession)))
	mux.Handle("DELETE /v1/sessions/{id}", limit(http.HandlerFunc(s.handleResetSession)))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.ui {
		mux.Handle("GET /ui/", http.StripPrefix("/ui", frontend.NewHandler()))
		mux.Handle("GET /{$}", http.RedirectHandler("/ui/", http.StatusFound))
	}

	if s.noAuth {
		s.logger.Warn("server starting WITHOUT authentication")
	} else if s.apiKey == "" {
		s.logger.Warn("no API key configured: all API requests will be rejected. Set VERSAILLES_API_KEY or use --no-auth")
	}
	guard := auth.Middleware(auth.Config{
		APIKey:      s.apiKey,
		NoAuth:      s.noAuth,
		PublicPaths: []string{"/", "/healthz", "/ui/"},
		Limiter:     limiter,
	})
	s.mux = mux
	s.server = &http.Server{
		Handler:           s.logRequests(guard(mux)),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.server.Addr = addr
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := s.server.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := telemetry.WithCorrelationID(r.Context(), r.Header.Get("X-Request-ID"))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		s.logger.DebugContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"correlation_id", telemetry.CorrelationID(ctx),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":  "healthy",
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"version": Version,
	}
	if s.snapshot != nil {
		body["runtime"] = s.snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	SessionID  string `json:"session_id"`
	TurnID     string `json:"turn_id"`
	Response   string `json:"response"`
	Backend    string `json:"backend,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	reply := s.conv.RunTurn(r.Context(), sessionID, req.Message)
	resp := messageResponse{
		SessionID:  reply.SessionID,
		TurnID:     reply.TurnID,
		Response:   reply.Text,
		Backend:    string(reply.Backend),
		DurationMS: reply.Duration.Milliseconds(),
	}
	if reply.Err != nil {
		resp.Error = reply.Err.Error()
	}
	writeJSON(w, turnStatus(reply.Err), resp)
}

// turnStatus maps a turn error to an HTTP status. The reply body is sent
// either way.
func turnStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrGenerationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, orchestrator.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	state, err := s.conv.State(r.Context(), sessionID)
	if err != nil {
		telemetry.RequestLogger(s.logger, r.Context(), sessionID).WarnContext(r.Context(), "load session failed", "error", err)
		writeError(w, turnStatus(err), "session_error", err.Error())
		return
	}
	body := map[string]any{
		"session_id":   sessionID,
		"chat_history": state.ChatHistory,
	}
	if len(state.Extra) > 0 {
		body["extra"] = state.Extra
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := s.conv.ResetSession(r.Context(), sessionID); err != nil {
		telemetry.RequestLogger(s.logger, r.Context(), sessionID).WarnContext(r.Context(), "reset session failed", "error", err)
		writeError(w, turnStatus(err), "session_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
