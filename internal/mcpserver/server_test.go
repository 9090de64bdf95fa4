package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"

	"github.com/dusk-indust/wavecode/internal/history"
	"github.com/dusk-indust/wavecode/internal/intent"
	"github.com/dusk-indust/wavecode/internal/logging"
	"github.com/dusk-indust/wavecode/internal/orchestrator"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runnerFunc adapts a function to orchestrator.Runner.
type runnerFunc func(ctx context.Context, input string) (*orchestrator.ChainResult, error)

func (f runnerFunc) Run(ctx context.Context, input string) (*orchestrator.ChainResult, error) {
	return f(ctx, input)
}

func fixedRunner(id string) runnerFunc {
	return func(_ context.Context, input string) (*orchestrator.ChainResult, error) {
		state := orchestrator.NewSharedState()
		state.ProblemStatement = input
		return &orchestrator.ChainResult{
			RunID:       id,
			FinalAnswer: "answer for " + input,
			State:       state,
			AuditTrail: []orchestrator.MergeAudit{
				{Wave: orchestrator.WaveFinalize, Agents: []string{"monitor"}, Conflicts: []string{"monitor: verdict fail"}},
			},
			Intent:       intent.Result{Type: intent.TypeCode},
			SkippedWaves: []string{orchestrator.WaveAnalysis},
			TokensUsed:   99,
		}, nil
	}
}

func openStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// connect wires server and client through in-memory transports.
func connect(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	server := NewServer(svc, "test")
	st, ct := mcp.NewInMemoryTransports()
	ctx := context.Background()

	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callTool[T any](t *testing.T, session *mcp.ClientSession, name string, args any) (T, *mcp.CallToolResult) {
	t.Helper()
	var out T
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if result.IsError {
		return out, result
	}
	require.NotNil(t, result.StructuredContent)
	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))
	return out, result
}

func TestServer_ListTools(t *testing.T) {
	session := connect(t, NewService(fixedRunner("r"), nil, logging.Discard()))

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, len(tools.Tools))
	for i, tool := range tools.Tools {
		names[i] = tool.Name
	}
	sort.Strings(names)
	assert.Equal(t, []string{"get_run", "list_runs", "run_chain"}, names)
}

func TestServer_RunChainThenQueryHistory(t *testing.T) {
	session := connect(t, NewService(fixedRunner("run-1"), openStore(t), logging.Discard()))

	out, _ := callTool[RunChainOutput](t, session, "run_chain", RunChainInput{Prompt: "fix the login bug"})
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, "answer for fix the login bug", out.FinalAnswer)
	assert.Equal(t, []string{orchestrator.WaveFinalize}, out.Waves)
	assert.Equal(t, []string{orchestrator.WaveAnalysis}, out.SkippedWaves)
	assert.Equal(t, []string{"finalize: monitor: verdict fail"}, out.Conflicts)

	got, _ := callTool[GetRunOutput](t, session, "get_run", GetRunInput{RunID: "run-1"})
	assert.Equal(t, "fix the login bug", got.Run.Input)
	assert.Equal(t, 99, got.Run.TokensUsed)
	assert.Equal(t, "fix the login bug", got.State["problem_statement"])

	list, _ := callTool[ListRunsOutput](t, session, "list_runs", ListRunsInput{Limit: 5})
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "run-1", list.Runs[0].RunID)
}

func TestService_RunChainFailure(t *testing.T) {
	boom := &orchestrator.FatalError{Phase: "merge:analysis", Err: errors.New("boom")}
	svc := NewService(runnerFunc(func(context.Context, string) (*orchestrator.ChainResult, error) {
		return nil, boom
	}), nil, logging.Discard())

	_, out, err := svc.RunChain(context.Background(), nil, RunChainInput{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "failed", out.Status)
	assert.Contains(t, out.Message, "merge:analysis")
}

func TestService_RunChainEmptyPrompt(t *testing.T) {
	svc := NewService(fixedRunner("r"), nil, logging.Discard())
	_, _, err := svc.RunChain(context.Background(), nil, RunChainInput{Prompt: "  "})
	assert.Error(t, err)
}

func TestService_HistoryDisabled(t *testing.T) {
	svc := NewService(fixedRunner("r"), nil, logging.Discard())

	_, _, err := svc.GetRun(context.Background(), nil, GetRunInput{RunID: "r"})
	assert.ErrorIs(t, err, ErrNoHistory)
	_, _, err = svc.ListRuns(context.Background(), nil, ListRunsInput{})
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestService_GetRunNotFound(t *testing.T) {
	svc := NewService(fixedRunner("r"), openStore(t), logging.Discard())
	_, _, err := svc.GetRun(context.Background(), nil, GetRunInput{RunID: "nope"})
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestServer_GetRunNotFoundIsToolError(t *testing.T) {
	session := connect(t, NewService(fixedRunner("r"), openStore(t), logging.Discard()))
	_, result := callTool[GetRunOutput](t, session, "get_run", GetRunInput{RunID: "nope"})
	assert.True(t, result.IsError)
}

func TestHTTPHandler_ServesMetrics(t *testing.T) {
	srv := httptest.NewServer(HTTPHandler(NewServer(NewService(fixedRunner("r"), nil, logging.Discard()), "test")))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
