package orchestrator

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/wavecode/internal/agent"
)

// outlineSeparator joins executor outputs in the final answer outline.
const outlineSeparator = "\n\n---\n\n"

// mergeAnalysis unions every analyzer's findings. Constraints, assumptions
// and risks go to the shared state; insights and recommendations are kept
// under wave_outputs.analysis.
func mergeAnalysis(state *SharedState, valid map[string]AgentResult, _ []AgentResult, audit *MergeAudit) error {
	roles := sortedRoles(valid)

	if dedupInto(&state.Constraints, "constraints", audit, collect(valid, roles, "constraints_found")...) {
		audit.Merged = append(audit.Merged, "constraints")
	}
	if dedupInto(&state.Assumptions, "assumptions", audit, collect(valid, roles, "assumptions")...) {
		audit.Merged = append(audit.Merged, "assumptions")
	}
	if dedupInto(&state.Risks, "risks", audit, collect(valid, roles, "risks")...) {
		audit.Merged = append(audit.Merged, "risks")
	}

	insights := []string{}
	dedupInto(&insights, "key_insights", audit, collect(valid, roles, "key_insights")...)
	recs := []string{}
	dedupInto(&recs, "recommendations_for_next_wave", audit, collect(valid, roles, "recommendations_for_next_wave")...)

	state.WaveOutputs[WaveAnalysis] = map[string]any{
		"insights":        insights,
		"recommendations": recs,
	}
	audit.Merged = append(audit.Merged, "wave_outputs."+WaveAnalysis)
	return nil
}

// mergePlanValidateOptimize is the only merge that replaces the plan.
func mergePlanValidateOptimize(state *SharedState, valid map[string]AgentResult, _ []AgentResult, audit *MergeAudit) error {
	if p, ok := valid[string(agent.RolePlanner)]; ok {
		state.Plan = stringsOf(p.Data, "step_by_step_plan")
		audit.Merged = append(audit.Merged, "plan")
		if dedupInto(&state.ArtifactsToUpdate, "artifacts_to_update", audit, stringsOf(p.Data, "deliverables")) {
			audit.Merged = append(audit.Merged, "artifacts_to_update")
		}
	}

	var readiness any
	if v, ok := valid[string(agent.RoleValidator)]; ok {
		risks := stringsOf(v.Data, "edge_cases")
		register, err := formatRiskRegister(v.Data["risk_register"])
		if err != nil {
			return err
		}
		risks = append(risks, register...)
		if dedupInto(&state.Risks, "risks", audit, risks) {
			audit.Merged = append(audit.Merged, "risks")
		}

		if score, ok := numberOf(v.Data["readiness_score"]); ok {
			readiness = score
		}
		for _, gap := range stringsOf(v.Data, "contradictions_or_gaps") {
			if gap = strings.TrimSpace(gap); gap != "" {
				audit.Conflicts = append(audit.Conflicts, "validator: "+gap)
			}
		}
	}
	state.WaveOutputs["readiness_score"] = readiness
	audit.Merged = append(audit.Merged, "wave_outputs.readiness_score")

	if o, ok := valid[string(agent.RoleOptimizer)]; ok {
		state.WaveOutputs["optimization"] = map[string]any{
			"simplifications":            stringsOf(o.Data, "simplifications"),
			"modularization_suggestions": stringsOf(o.Data, "modularization_suggestions"),
		}
		audit.Merged = append(audit.Merged, "wave_outputs.optimization")
	}
	return nil
}

// formatRiskRegister renders risk register items as "[severity] risk: mitigation".
func formatRiskRegister(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("risk_register: expected array, got %T", v)
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("risk_register item %d: expected object, got %T", i, it)
		}
		out = append(out, fmt.Sprintf("[%s] %s: %s", text(m["severity"]), text(m["risk"]), text(m["mitigation"])))
	}
	return out, nil
}

// mergeExecution keeps one entry per executor and joins the concrete
// outputs of the valid ones into the final answer outline. A failed or
// invalid executor gets an entry with valid=false and empty fields.
func mergeExecution(state *SharedState, valid map[string]AgentResult, all []AgentResult, audit *MergeAudit) error {
	entries := make([]any, 0, len(all))
	var outputs []string
	for _, r := range all {
		role := string(r.Role)
		v, ok := valid[role]
		if !ok {
			entries = append(entries, map[string]any{
				"role":              role,
				"valid":             false,
				"concrete_output":   "",
				"integration_steps": []string{},
				"tests_or_checks":   []string{},
			})
			continue
		}
		out := stringOf(v.Data, "concrete_output")
		entries = append(entries, map[string]any{
			"role":              role,
			"valid":             true,
			"concrete_output":   out,
			"integration_steps": nonNilStrings(stringsOf(v.Data, "integration_steps")),
			"tests_or_checks":   nonNilStrings(stringsOf(v.Data, "tests_or_checks")),
		})
		if out != "" {
			outputs = append(outputs, out)
		}
	}

	state.WaveOutputs[WaveExecution] = entries
	audit.Merged = append(audit.Merged, "wave_outputs."+WaveExecution)

	if len(outputs) > 0 {
		state.FinalAnswerOutline = strings.Join(outputs, outlineSeparator)
		audit.Merged = append(audit.Merged, "final_answer_outline")
	}
	return nil
}

// mergeFinalize stores each finalize role's data under its own key, or nil
// when the role did not produce a valid result. A failing monitor verdict is
// recorded as a conflict.
func mergeFinalize(state *SharedState, valid map[string]AgentResult, _ []AgentResult, audit *MergeAudit) error {
	for _, role := range []agent.Role{agent.RoleMonitor, agent.RoleReporter, agent.RoleCleaner} {
		key := string(role)
		if r, ok := valid[key]; ok {
			state.WaveOutputs[key] = deepCopy(r.Data)
		} else {
			state.WaveOutputs[key] = nil
		}
		audit.Merged = append(audit.Merged, "wave_outputs."+key)
	}

	m, ok := valid[string(agent.RoleMonitor)]
	if !ok || !strings.EqualFold(stringOf(m.Data, "verdict"), "fail") {
		return nil
	}
	conflict := "monitor: verdict fail"
	if issues := stringsOf(m.Data, "issues"); len(issues) > 0 {
		conflict += ": " + strings.Join(issues, "; ")
	}
	audit.Conflicts = append(audit.Conflicts, conflict)
	return nil
}

func nonNilStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
