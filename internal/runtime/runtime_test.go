package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szaher/versailles/internal/config"
	"github.com/szaher/versailles/internal/llm"
	"github.com/szaher/versailles/internal/memory"
	"github.com/szaher/versailles/internal/secrets"
	"github.com/szaher/versailles/internal/testutil"
)

const bonjour = "Bonjour, comment puis-je vous aider ?"

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	for _, name := range []string{
		"GOOGLE_MAPS_API_KEY", "VERSAILLES_API_KEY", "VERSAILLES_STORE", "VERSAILLES_MODEL",
		"VERSAILLES_SYSTEM_PROMPT_FILE", "REDIS_HOST", "REDIS_PORT", "VAULT_ADDR",
	} {
		t.Setenv(name, "")
	}
	path := testutil.WriteFile(t, t.TempDir(), "versailles.yaml", yaml)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func newRuntime(t *testing.T, yaml string, client llm.Client) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), loadConfig(t, yaml), Options{
		Logger:    testutil.Logger(),
		LLMClient: client,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

const memoryConfig = `
redis:
  enabled: false
store:
  backend: memory
server:
  api_key: test-key
`

func request(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer test-key")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp, out
}

func TestRuntime_ConversationOverHTTP(t *testing.T) {
	client := llm.NewMockClient(
		llm.MockResponse{Content: bonjour},
		llm.MockResponse{Content: "Le château ouvre à 9h."},
	)
	rt := newRuntime(t, memoryConfig, client)
	assert.Equal(t, memory.BackendLocal, memory.Backend(rt.Snapshot().Memory))
	assert.NoError(t, rt.Health(context.Background()))

	srv := httptest.NewServer(NewServer(rt.Orchestrator(),
		WithAPIKey("test-key"),
		WithMetrics(rt.Metrics().Handler()),
		WithLogger(testutil.Logger()),
	).Handler())
	defer srv.Close()

	resp, body := request(t, srv, http.MethodPost, "/v1/sessions/s1/messages", `{"message":"Bonjour"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, bonjour, body["response"])
	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, "local", body["backend"])
	assert.NotEmpty(t, body["turn_id"])

	resp, body = request(t, srv, http.MethodGet, "/v1/sessions/s1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "\nUtilisateur : Bonjour\nAgent : "+bonjour, body["chat_history"])

	resp, _ = request(t, srv, http.MethodPost, "/v1/sessions/s1/messages", `{"message":"Horaires ?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	calls := client.Calls()
	require.Len(t, calls, 2)
	last := calls[1].Messages[len(calls[1].Messages)-1]
	assert.Contains(t, last.Content, "Contexte précédent : \nUtilisateur : Bonjour")
	assert.True(t, strings.HasSuffix(last.Content, "Utilisateur : Horaires ?"))

	resp, _ = request(t, srv, http.MethodDelete, "/v1/sessions/s1", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, body = request(t, srv, http.MethodGet, "/v1/sessions/s1", "")
	assert.Equal(t, "", body["chat_history"])

	metricsReq, err := http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	require.NoError(t, err)
	metricsReq.Header.Set("Authorization", "Bearer test-key")
	mresp, err := srv.Client().Do(metricsReq)
	require.NoError(t, err)
	defer mresp.Body.Close()
	text, _ := io.ReadAll(mresp.Body)
	assert.Contains(t, string(text), `versailles_turns_total{status="ok"} 2`)
}

func TestRuntime_UnreachableRedisFallsBackLocally(t *testing.T) {
	rt := newRuntime(t, `
redis:
  host: 127.0.0.1
  port: 1
  probe_timeout: 200ms
store:
  backend: redis
model:
  generate_timeout: 30s
`, llm.NewMockClient(llm.MockResponse{Content: bonjour}))

	require.False(t, rt.Status().Reachable)
	assert.Equal(t, "local", rt.Snapshot().Memory)
	assert.Error(t, rt.Health(context.Background()))

	ctx := context.Background()
	reply := rt.Orchestrator().RunTurn(ctx, "s1", "Bonjour")
	require.NoError(t, reply.Err)
	assert.Equal(t, bonjour, reply.Text)
	assert.Equal(t, memory.BackendLocal, reply.Backend)

	state, err := rt.Orchestrator().State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "\nUtilisateur : Bonjour\nAgent : "+bonjour, state.ChatHistory)
	assert.Equal(t, 1, rt.Snapshot().PendingSync)
}

func TestRuntime_SystemPromptFile(t *testing.T) {
	prompt := testutil.WriteFile(t, t.TempDir(), "prompt.txt", "  Vous êtes le guide du château.\n")

	rt := newRuntime(t, memoryConfig+"model:\n  system_prompt_file: "+prompt+"\n", llm.NewMockClient(llm.MockResponse{Content: "ok"}))
	assert.Equal(t, "Vous êtes le guide du château.", rt.Agent().System())
}

func TestRuntime_MissingPromptFile(t *testing.T) {
	cfg := loadConfig(t, memoryConfig+"model:\n  system_prompt_file: /nonexistent/prompt.txt\n")
	_, err := New(context.Background(), cfg, Options{Logger: testutil.Logger(), LLMClient: llm.NewMockClient()})
	require.Error(t, err)
}

func TestRuntime_RedactsResolvedSecrets(t *testing.T) {
	cfg := loadConfig(t, memoryConfig)
	cfg.Server.APIKey = "env(VERSAILLES_TEST_SERVER_KEY)"
	t.Setenv("VERSAILLES_TEST_SERVER_KEY", "s3cr3t-value")

	var buf strings.Builder
	redactor := secrets.NewRedactHandler(slog.NewTextHandler(&buf, nil))
	rt, err := New(context.Background(), cfg, Options{
		Logger:    slog.New(redactor),
		Redactor:  redactor,
		LLMClient: llm.NewMockClient(llm.MockResponse{Content: "ok"}),
	})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, "s3cr3t-value", cfg.Server.APIKey)
	slog.New(redactor).Info("key is s3cr3t-value")
	assert.NotContains(t, buf.String(), "s3cr3t-value")
}

func TestRuntime_RegistersEveryTool(t *testing.T) {
	rt := newRuntime(t, memoryConfig, llm.NewMockClient(llm.MockResponse{Content: "ok"}))
	assert.Len(t, rt.Registry().Definitions(), len(rt.Registry().Names()))
	assert.Contains(t, rt.Registry().Names(), "get_weather")
}
