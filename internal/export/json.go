package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/wavecode/internal/orchestrator"
)

// RunExport is the top-level JSON export structure.
type RunExport struct {
	RunID       string                    `json:"runId"`
	Input       string                    `json:"input"`
	ExportedAt  string                    `json:"exportedAt"`
	Intent      string                    `json:"intent"`
	Confidence  float64                   `json:"confidence"`
	FinalAnswer string                    `json:"finalAnswer"`
	DurationMS  int64                     `json:"durationMs"`
	TokensUsed  int                       `json:"tokensUsed"`
	Budget      BudgetExport              `json:"budget"`
	Waves       []WaveExport              `json:"waves"`
	State       *orchestrator.SharedState `json:"state"`
}

// BudgetExport reports whether the run stopped on its token budget.
type BudgetExport struct {
	Exhausted bool `json:"exhausted"`
}

// WaveExport describes one wave of the run.
type WaveExport struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"` // executed, cached or skipped
	Agents    []string `json:"agents,omitempty"`
	Deduped   []string `json:"deduped,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
	Merged    []string `json:"merged,omitempty"`
}

// Wave statuses.
const (
	StatusExecuted   = "executed"
	StatusCached     = "cached"
	StatusSkipped    = "skipped"
	StatusNotReached = "not-reached"
)

// ExportRun builds a RunExport from a chain result. Audited waves come first
// in run order, followed by the waves adaptive selection skipped.
func ExportRun(input string, res *orchestrator.ChainResult) *RunExport {
	export := &RunExport{
		RunID:       res.RunID,
		Input:       input,
		ExportedAt:  time.Now().UTC().Format(time.RFC3339),
		Intent:      string(res.Intent.Type),
		Confidence:  res.Intent.Confidence,
		FinalAnswer: res.FinalAnswer,
		DurationMS:  res.Duration.Milliseconds(),
		TokensUsed:  res.TokensUsed,
		Budget:      BudgetExport{Exhausted: res.BudgetExhausted},
		Waves:       []WaveExport{},
		State:       res.State,
	}

	cached := make(map[string]bool, len(res.CachedWaves))
	for _, w := range res.CachedWaves {
		cached[w] = true
	}
	for _, a := range res.AuditTrail {
		status := StatusExecuted
		if cached[a.Wave] {
			status = StatusCached
		}
		export.Waves = append(export.Waves, WaveExport{
			Name:      a.Wave,
			Status:    status,
			Agents:    a.Agents,
			Deduped:   a.Deduped,
			Conflicts: a.Conflicts,
			Merged:    a.Merged,
		})
	}
	for _, w := range res.SkippedWaves {
		export.Waves = append(export.Waves, WaveExport{Name: w, Status: StatusSkipped})
	}
	return export
}

// WriteJSON writes export as indented JSON.
func WriteJSON(w io.Writer, export *RunExport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}
