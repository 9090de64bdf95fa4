//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dusk-indust/wavecode/internal/cache"
	"github.com/dusk-indust/wavecode/internal/history"
	"github.com/dusk-indust/wavecode/internal/llm"
	"github.com/dusk-indust/wavecode/internal/logging"
	"github.com/dusk-indust/wavecode/internal/mcpserver"
	"github.com/dusk-indust/wavecode/internal/orchestrator"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roleRe = regexp.MustCompile(`agent \(([a-z0-9_]+)\)`)

// replies holds a contract-valid answer per role.
var replies = map[string]any{
	"ingest": map[string]any{
		"problem_statement":   "Add a /healthz endpoint",
		"success_criteria":    []string{"GET /healthz returns 200"},
		"constraints":         []string{"No new dependencies"},
		"assumptions":         []string{"net/http server"},
		"artifacts_to_update": []string{"cmd/server/main.go"},
	},
	"analyzer_a": analysis("Handler is trivial"),
	"analyzer_b": analysis("Load balancer probes it"),
	"planner": map[string]any{
		"step_by_step_plan": []string{"Add handler", "Register route"},
		"deliverables":      []string{"internal/health/health.go"},
	},
	"validator": map[string]any{
		"readiness_score":        95,
		"edge_cases":             []string{"Shutdown in progress"},
		"risk_register":          []any{},
		"contradictions_or_gaps": []string{},
	},
	"optimizer": map[string]any{
		"simplifications":            []string{"Use http.HandlerFunc"},
		"modularization_suggestions": []string{},
	},
	"executor_1": execution("func healthz(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }"),
	"executor_2": execution("mux.HandleFunc(\"/healthz\", healthz)"),
	"monitor":    map[string]any{"verdict": "pass", "issues": []string{}},
	"reporter":   map[string]any{"final_answer": "Add the healthz handler and register it."},
	"cleaner":    map[string]any{"cleaned_output": "Add a healthz handler returning 200 and register it on the mux."},
}

func analysis(insight string) map[string]any {
	return map[string]any{
		"key_insights":                  []string{insight},
		"constraints_found":             []string{"Keep the handler dependency free"},
		"assumptions":                   []string{},
		"risks":                         []string{"Probe hides real failures"},
		"recommendations_for_next_wave": []string{"Return 200 only when ready"},
	}
}

func execution(code string) map[string]any {
	return map[string]any{
		"concrete_output":   code,
		"integration_steps": []string{"go build ./..."},
		"tests_or_checks":   []string{"curl /healthz"},
	}
}

// roleOfMessages finds the calling role in the system prompt.
func roleOfMessages(system string) string {
	if m := roleRe.FindStringSubmatch(system); m != nil {
		return m[1]
	}
	return ""
}

// fakeOpenAI serves /v1/chat/completions, answering each role from replies.
// failFirst makes the first n requests fail with 503.
type fakeOpenAI struct {
	calls     atomic.Int64
	failFirst int64

	mu    sync.Mutex
	roles map[string]int
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	n := f.calls.Add(1)
	if n <= f.failFirst {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
		return
	}

	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	role := ""
	for _, m := range req.Messages {
		if m.Role == "system" {
			role = roleOfMessages(m.Content)
		}
	}
	f.mu.Lock()
	f.roles[role]++
	f.mu.Unlock()

	content, _ := json.Marshal(replies[role])
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-test",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": string(content)},
		}},
		"usage": map[string]any{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
	})
}

func (f *fakeOpenAI) roleCalls(role string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[role]
}

func newFakeOpenAI(t *testing.T, failFirst int64) (*fakeOpenAI, string) {
	t.Helper()
	f := &fakeOpenAI{failFirst: failFirst, roles: make(map[string]int)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL + "/v1"
}

// fakeAnthropic serves /v1/messages with the same replies.
func newFakeAnthropic(t *testing.T, calls *atomic.Int64) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		var req struct {
			System string `json:"system"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content, _ := json.Marshal(replies[roleOfMessages(req.System)])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []any{map[string]any{"type": "text", "text": string(content)}},
			"usage":   map[string]any{"input_tokens": 7, "output_tokens": 3},
		})
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func stackSettings() llm.StackSettings {
	return llm.StackSettings{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		AttemptTimeout:  5 * time.Second,
		Logger:          logging.Discard(),
	}
}

func TestChain_E2E_OpenAI(t *testing.T) {
	fake, baseURL := newFakeOpenAI(t, 0)
	backend, err := llm.NewStack(map[string]llm.ProviderSettings{
		llm.ProviderOpenAI: {APIKey: "sk-test", BaseURL: baseURL, Model: "gpt-test"},
	}, []string{llm.ProviderOpenAI}, stackSettings())
	require.NoError(t, err)

	ctrl := orchestrator.NewController(backend, orchestrator.Config{
		DefaultProvider: llm.ProviderOpenAI,
		TokenBudget:     10000,
	}, orchestrator.WithLogger(logging.Discard()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := ctrl.Run(ctx, "add a healthz endpoint to the server")
	require.NoError(t, err)

	assert.Equal(t, "Add a healthz handler returning 200 and register it on the mux.", res.FinalAnswer)
	assert.Equal(t, []string{
		orchestrator.WaveAnalysis, orchestrator.WavePlanValidateOptimize,
		orchestrator.WaveExecution, orchestrator.WaveFinalize,
	}, res.ExecutedWaves())
	assert.Equal(t, []string{"Add handler", "Register route"}, res.State.Plan)
	assert.Equal(t, 11*10, res.TokensUsed)
	assert.False(t, res.BudgetExhausted)
	assert.Equal(t, 1, fake.roleCalls("cleaner"))
	assert.Equal(t, int64(11), fake.calls.Load())
}

func TestChain_E2E_FallsBackToAnthropic(t *testing.T) {
	// Every OpenAI request fails, so each call exhausts its retries and
	// moves on to Anthropic.
	fake, baseURL := newFakeOpenAI(t, 1<<30)
	var anthropicCalls atomic.Int64
	anthropicURL := newFakeAnthropic(t, &anthropicCalls)

	backend, err := llm.NewStack(map[string]llm.ProviderSettings{
		llm.ProviderOpenAI:    {APIKey: "sk-test", BaseURL: baseURL, Model: "gpt-test"},
		llm.ProviderAnthropic: {APIKey: "ak-test", BaseURL: anthropicURL, Model: "claude-test"},
	}, []string{llm.ProviderOpenAI, llm.ProviderAnthropic}, stackSettings())
	require.NoError(t, err)

	ctrl := orchestrator.NewController(backend, orchestrator.Config{DefaultProvider: llm.ProviderOpenAI},
		orchestrator.WithLogger(logging.Discard()))

	res, err := ctrl.Run(context.Background(), "add a healthz endpoint to the server")
	require.NoError(t, err)
	assert.Equal(t, "Add a healthz handler returning 200 and register it on the mux.", res.FinalAnswer)
	assert.Equal(t, int64(11), anthropicCalls.Load())
	// One attempt plus one retry per call.
	assert.Equal(t, int64(22), fake.calls.Load())
}

func TestChain_E2E_RedisCacheAcrossControllers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fake, baseURL := newFakeOpenAI(t, 0)
	backend, err := llm.NewStack(map[string]llm.ProviderSettings{
		llm.ProviderOpenAI: {APIKey: "sk-test", BaseURL: baseURL},
	}, []string{llm.ProviderOpenAI}, stackSettings())
	require.NoError(t, err)

	newCtrl := func() *orchestrator.Controller {
		return orchestrator.NewController(backend, orchestrator.Config{},
			orchestrator.WithLogger(logging.Discard()),
			orchestrator.WithCache(cache.NewRedis[orchestrator.CacheEntry](client, "wavecode-e2e", 50)))
	}

	first, err := newCtrl().Run(context.Background(), "add a healthz endpoint to the server")
	require.NoError(t, err)
	assert.Empty(t, first.CachedWaves)
	callsAfterFirst := fake.calls.Load()

	second, err := newCtrl().Run(context.Background(), "add a healthz endpoint to the server")
	require.NoError(t, err)
	assert.Equal(t, first.FinalAnswer, second.FinalAnswer)
	assert.Equal(t, second.ExecutedWaves(), second.CachedWaves)
	// Only ingest is called again.
	assert.Equal(t, callsAfterFirst+1, fake.calls.Load())
}

func TestChain_E2E_MCPWithHistory(t *testing.T) {
	_, baseURL := newFakeOpenAI(t, 0)
	backend, err := llm.NewStack(map[string]llm.ProviderSettings{
		llm.ProviderOpenAI: {APIKey: "sk-test", BaseURL: baseURL},
	}, []string{llm.ProviderOpenAI}, stackSettings())
	require.NoError(t, err)
	ctrl := orchestrator.NewController(backend, orchestrator.Config{}, orchestrator.WithLogger(logging.Discard()))

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := httptest.NewServer(mcpserver.HTTPHandler(
		mcpserver.NewServer(mcpserver.NewService(ctrl, store, logging.Discard()), "e2e")))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client := mcp.NewClient(&mcp.Implementation{Name: "e2e", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: srv.URL + "/mcp"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	var run mcpserver.RunChainOutput
	call(ctx, t, session, "run_chain", mcpserver.RunChainInput{Prompt: "add a healthz endpoint"}, &run)
	require.NotEmpty(t, run.RunID)
	assert.Equal(t, "Add a healthz handler returning 200 and register it on the mux.", run.FinalAnswer)

	var got mcpserver.GetRunOutput
	call(ctx, t, session, "get_run", mcpserver.GetRunInput{RunID: run.RunID}, &got)
	assert.Equal(t, run.RunID, got.Run.RunID)
	assert.Equal(t, run.FinalAnswer, got.FinalAnswer)

	var list mcpserver.ListRunsOutput
	call(ctx, t, session, "list_runs", mcpserver.ListRunsInput{}, &list)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, run.RunID, list.Runs[0].RunID)
}

func call(ctx context.Context, t *testing.T, session *mcp.ClientSession, name string, args, out any) {
	t.Helper()
	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, result.IsError, "tool %s returned an error", name)
	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
