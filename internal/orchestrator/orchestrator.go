package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/dusk-indust/wavecode/internal/agent"
	"github.com/dusk-indust/wavecode/internal/intent"
	"github.com/dusk-indust/wavecode/internal/llm"
)

// Wave names of the default pipeline.
const (
	WaveIngest               = "ingest"
	WaveAnalysis             = "analysis"
	WavePlanValidateOptimize = "plan_validate_optimize"
	WaveExecution            = "execution"
	WaveFinalize             = "finalize"
)

// WaveConfig is one sequential stage and the roles run concurrently in it.
type WaveConfig struct {
	Name   string       `json:"name" yaml:"name"`
	Agents []agent.Role `json:"agents" yaml:"agents"`
}

// DefaultWaves returns the default topology. Ingest is implicit and always
// runs first.
func DefaultWaves() []WaveConfig {
	return []WaveConfig{
		{Name: WaveAnalysis, Agents: []agent.Role{agent.RoleAnalyzerA, agent.RoleAnalyzerB}},
		{Name: WavePlanValidateOptimize, Agents: []agent.Role{agent.RolePlanner, agent.RoleValidator, agent.RoleOptimizer}},
		{Name: WaveExecution, Agents: []agent.Role{agent.RoleExecutor1, agent.RoleExecutor2}},
		{Name: WaveFinalize, Agents: []agent.Role{agent.RoleMonitor, agent.RoleReporter, agent.RoleCleaner}},
	}
}

// AgentResult is the outcome of one role's call within a wave.
type AgentResult struct {
	Role           agent.Role     `json:"role"`
	Data           map[string]any `json:"data"`
	RawText        string         `json:"rawText"`
	Valid          bool           `json:"valid"`
	Retried        bool           `json:"retried"`
	ContractErrors []string       `json:"contractErrors,omitempty"`
	Usage          *llm.Usage     `json:"usage,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// MergeAudit records what one wave's merge did. It is never modified after
// it has been appended to the audit trail.
type MergeAudit struct {
	Wave      string   `json:"wave"`
	Agents    []string `json:"agents"`
	Deduped   []string `json:"deduped"`
	Conflicts []string `json:"conflicts"`
	Merged    []string `json:"merged"`
}

// Clone returns a copy that shares no slices with a.
func (a MergeAudit) Clone() MergeAudit {
	return MergeAudit{
		Wave:      a.Wave,
		Agents:    cloneStrings(a.Agents),
		Deduped:   cloneStrings(a.Deduped),
		Conflicts: cloneStrings(a.Conflicts),
		Merged:    cloneStrings(a.Merged),
	}
}

// ChainResult is the outcome of one Run. The controller keeps no reference
// to it after returning.
type ChainResult struct {
	RunID       string        `json:"runId"`
	FinalAnswer string        `json:"finalAnswer"`
	State       *SharedState  `json:"state"`
	AuditTrail  []MergeAudit  `json:"auditTrail"`
	Duration    time.Duration `json:"duration"`

	Intent          intent.Result `json:"intent"`
	SkippedWaves    []string      `json:"skippedWaves,omitempty"`
	CachedWaves     []string      `json:"cachedWaves,omitempty"`
	TokensUsed      int           `json:"tokensUsed"`
	BudgetExhausted bool          `json:"budgetExhausted"`
}

// ExecutedWaves returns the wave names in the audit trail, in order.
func (r *ChainResult) ExecutedWaves() []string {
	names := make([]string, len(r.AuditTrail))
	for i, a := range r.AuditTrail {
		names[i] = a.Wave
	}
	return names
}

// FatalError aborts a run. Phase is "ingest", "wave:<wave>",
// "merge:<wave>" or "cancel:<wave>".
type FatalError struct {
	Phase string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("chain: fatal in %s: %v", e.Phase, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Runner runs the wave pipeline for one request.
type Runner interface {
	Run(ctx context.Context, input string) (*ChainResult, error)
}
