package orchestrator

import "github.com/dusk-indust/wavecode/internal/agent"

// RoleOverride routes one role to a specific provider and model.
type RoleOverride struct {
	Provider string
	Model    string
}

// Config holds the static settings of a Controller.
type Config struct {
	// Waves is the ordered pipeline topology after ingest.
	Waves []WaveConfig

	// DefaultProvider and DefaultModel apply to roles without an override.
	// Empty values leave the choice to the backend.
	DefaultProvider string
	DefaultModel    string

	// RoleOverrides maps a role to its provider and model.
	RoleOverrides map[agent.Role]RoleOverride

	// TokenBudget is the total token allowance of a run. Zero or less means
	// unlimited.
	TokenBudget int

	// BudgetFractions maps a wave name to the share of TokenBudget its
	// agents may ask for, split evenly between them.
	BudgetFractions map[string]float64

	// MaxTokensPerCall is the completion limit for calls not covered by
	// BudgetFractions. Zero leaves the provider default.
	MaxTokensPerCall int

	Temperature float32

	// CacheCapacity sizes the in-memory result cache created when no cache
	// is injected.
	CacheCapacity int

	// DisableAdaptiveSkip runs every configured wave regardless of intent.
	DisableAdaptiveSkip bool
}

// DefaultConfig returns the default topology with no budget.
func DefaultConfig() Config {
	return Config{
		Waves:         DefaultWaves(),
		CacheCapacity: 100,
	}
}

// maxTokensFor returns the completion limit for each agent of wave.
func (c Config) maxTokensFor(wave WaveConfig) int {
	frac, ok := c.BudgetFractions[wave.Name]
	if !ok || c.TokenBudget <= 0 || frac <= 0 || len(wave.Agents) == 0 {
		return c.MaxTokensPerCall
	}
	return int(float64(c.TokenBudget) * frac / float64(len(wave.Agents)))
}

// route returns the provider and model for role.
func (c Config) route(role agent.Role) (provider, model string) {
	provider, model = c.DefaultProvider, c.DefaultModel
	if o, ok := c.RoleOverrides[role]; ok {
		if o.Provider != "" {
			provider = o.Provider
			model = ""
		}
		if o.Model != "" {
			model = o.Model
		}
	}
	return provider, model
}
