package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dusk-indust/wavecode/internal/history"
	"github.com/dusk-indust/wavecode/internal/orchestrator"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrNoHistory is returned by the history tools when no store is configured.
var ErrNoHistory = errors.New("mcpserver: run history is disabled")

// RunStore is the part of history.Store the tools use.
type RunStore interface {
	Save(ctx context.Context, input string, res *orchestrator.ChainResult) error
	Get(ctx context.Context, id string) (*history.Record, error)
	List(ctx context.Context, limit int) ([]history.Record, error)
}

// Service handles MCP tool calls. It wraps a Runner to execute chains and
// an optional RunStore to persist and query them.
type Service struct {
	runner orchestrator.Runner
	store  RunStore
	logger *slog.Logger
}

// NewService creates a Service. store may be nil.
func NewService(runner orchestrator.Runner, store RunStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, store: store, logger: logger}
}

// RunChain runs the full chain for a prompt and stores the result.
func (s *Service) RunChain(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunChainInput,
) (*mcp.CallToolResult, RunChainOutput, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil, RunChainOutput{}, errors.New("prompt must not be empty")
	}

	res, err := s.runner.Run(ctx, prompt)
	if err != nil {
		return nil, RunChainOutput{
			Status:       "failed",
			Message:      err.Error(),
			Waves:        []string{},
			CachedWaves:  []string{},
			SkippedWaves: []string{},
			Conflicts:    []string{},
		}, nil
	}

	if s.store != nil {
		if err := s.store.Save(ctx, prompt, res); err != nil {
			s.logger.Warn("saving run failed", "run", res.RunID, "error", err)
		}
	}

	return nil, RunChainOutput{
		RunID:           res.RunID,
		Status:          "completed",
		FinalAnswer:     res.FinalAnswer,
		Intent:          string(res.Intent.Type),
		Waves:           nonNil(res.ExecutedWaves()),
		CachedWaves:     nonNil(res.CachedWaves),
		SkippedWaves:    nonNil(res.SkippedWaves),
		Conflicts:       conflicts(res.AuditTrail),
		TokensUsed:      res.TokensUsed,
		BudgetExhausted: res.BudgetExhausted,
	}, nil
}

// GetRun returns a stored run.
func (s *Service) GetRun(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetRunInput,
) (*mcp.CallToolResult, GetRunOutput, error) {
	if s.store == nil {
		return nil, GetRunOutput{}, ErrNoHistory
	}
	rec, err := s.store.Get(ctx, input.RunID)
	if err != nil {
		return nil, GetRunOutput{}, err
	}

	state := map[string]any{}
	if rec.State != nil {
		data, err := json.Marshal(rec.State)
		if err != nil {
			return nil, GetRunOutput{}, fmt.Errorf("encode state: %w", err)
		}
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, GetRunOutput{}, fmt.Errorf("decode state: %w", err)
		}
	}

	return nil, GetRunOutput{
		Run:         summarize(*rec),
		FinalAnswer: rec.FinalAnswer,
		State:       state,
		Conflicts:   conflicts(rec.AuditTrail),
	}, nil
}

// ListRuns returns the most recent stored runs.
func (s *Service) ListRuns(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListRunsInput,
) (*mcp.CallToolResult, ListRunsOutput, error) {
	if s.store == nil {
		return nil, ListRunsOutput{}, ErrNoHistory
	}
	records, err := s.store.List(ctx, input.Limit)
	if err != nil {
		return nil, ListRunsOutput{}, err
	}

	out := ListRunsOutput{Runs: make([]RunSummary, 0, len(records))}
	for _, r := range records {
		out.Runs = append(out.Runs, summarize(r))
	}
	return nil, out, nil
}

func summarize(r history.Record) RunSummary {
	return RunSummary{
		RunID:      r.ID,
		Input:      r.Input,
		Intent:     r.Intent,
		TokensUsed: r.TokensUsed,
		DurationMS: r.Duration.Milliseconds(),
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// conflicts flattens the audit trail's conflicts as "wave: conflict".
func conflicts(trail []orchestrator.MergeAudit) []string {
	out := []string{}
	for _, a := range trail {
		for _, c := range a.Conflicts {
			out = append(out, a.Wave+": "+c)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
