package orchestrator

import "fmt"

// CoherenceIssue is an inconsistency noticed in the shared state after a
// merge. Issues are logged; they never change the state.
type CoherenceIssue struct {
	Field       string
	Description string
}

// CheckCoherence looks for plan steps that repeat an earlier step and for
// entries listed both as a constraint and as an assumption. Comparison uses
// the same normalization as set deduplication.
func CheckCoherence(state *SharedState) []CoherenceIssue {
	var issues []CoherenceIssue

	steps := make(map[string]int, len(state.Plan))
	for i, step := range state.Plan {
		h := contentHash(step)
		if first, ok := steps[h]; ok {
			issues = append(issues, CoherenceIssue{
				Field:       "plan",
				Description: fmt.Sprintf("step %d repeats step %d: %q", i+1, first+1, step),
			})
			continue
		}
		steps[h] = i
	}

	constraints := make(map[string]bool, len(state.Constraints))
	for _, c := range state.Constraints {
		constraints[contentHash(c)] = true
	}
	for _, a := range state.Assumptions {
		if constraints[contentHash(a)] {
			issues = append(issues, CoherenceIssue{
				Field:       "assumptions",
				Description: fmt.Sprintf("%q is listed both as a constraint and as an assumption", a),
			})
		}
	}
	return issues
}
