package agent

import (
	"sort"
	"sync"
)

// Registry maps roles to their output contracts.
type Registry struct {
	mu        sync.RWMutex
	contracts map[Role]Contract
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[Role]Contract)}
}

// DefaultRegistry creates a Registry holding the contracts of every built-in
// role. Ingest has no contract; its output is read leniently.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range defaultContracts() {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the contract for c.Role.
func (r *Registry) Register(c Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[c.Role] = c
}

// Lookup returns the contract registered for role.
func (r *Registry) Lookup(role Role) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[role]
	return c, ok
}

// Roles returns every role with a contract, sorted.
func (r *Registry) Roles() []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]Role, 0, len(r.contracts))
	for role := range r.contracts {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Verdict is the outcome of checking an agent's output.
type Verdict struct {
	HasContract bool
	Valid       bool
	Errors      []string
}

// Check validates data for role. Roles without a contract are always valid.
// A role with a contract and nil data is invalid.
func (r *Registry) Check(role Role, data map[string]any) Verdict {
	c, ok := r.Lookup(role)
	if !ok {
		return Verdict{Valid: true}
	}
	if data == nil {
		return Verdict{
			HasContract: true,
			Errors:      []string{"response did not contain a JSON object"},
		}
	}
	valid, errs := c.Validate(data)
	return Verdict{HasContract: true, Valid: valid, Errors: errs}
}

func stringArrays(names ...string) []Field {
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i] = Field{Name: n, Type: FieldStringArray}
	}
	return fields
}

func defaultContracts() []Contract {
	analyzer := stringArrays("key_insights", "constraints_found", "assumptions", "risks", "recommendations_for_next_wave")
	executor := append([]Field{
		{Name: "concrete_output", Type: FieldString, Description: "code, configuration or prose, in markdown"},
	}, stringArrays("integration_steps", "tests_or_checks")...)

	return []Contract{
		{Role: RoleAnalyzerA, Fields: analyzer},
		{Role: RoleAnalyzerB, Fields: analyzer},
		{Role: RolePlanner, Fields: stringArrays("step_by_step_plan", "deliverables")},
		{Role: RoleValidator, Fields: []Field{
			{Name: "readiness_score", Type: FieldNumberRange, Min: 0, Max: 100},
			{Name: "edge_cases", Type: FieldStringArray},
			{Name: "risk_register", Type: FieldObjectArray, Keys: []string{"risk", "severity", "mitigation"},
				Description: "severity is low, medium or high"},
			{Name: "contradictions_or_gaps", Type: FieldStringArray},
		}},
		{Role: RoleOptimizer, Fields: stringArrays("simplifications", "modularization_suggestions")},
		{Role: RoleExecutor1, Fields: executor},
		{Role: RoleExecutor2, Fields: executor},
		{Role: RoleMonitor, Fields: []Field{
			{Name: "verdict", Type: FieldString, Enum: []string{"pass", "warn", "fail"}},
			{Name: "issues", Type: FieldStringArray},
		}},
		{Role: RoleReporter, Fields: []Field{{Name: "final_answer", Type: FieldString}}},
		{Role: RoleCleaner, Fields: []Field{{Name: "cleaned_output", Type: FieldString}}},
	}
}
