package orchestrator

import (
	"fmt"
	"strings"
)

// AssembleFinalAnswer picks the best available answer: the cleaner's output,
// then the reporter's answer, then the execution outline, and finally a
// markdown summary synthesized from the problem, plan and risks.
func AssembleFinalAnswer(state *SharedState) string {
	if s := nestedString(state.WaveOutputs, "cleaner", "cleaned_output"); s != "" {
		return s
	}
	if s := nestedString(state.WaveOutputs, "reporter", "final_answer"); s != "" {
		return s
	}
	if s := strings.TrimSpace(state.FinalAnswerOutline); s != "" {
		return s
	}
	return synthesizeAnswer(state)
}

func nestedString(outputs map[string]any, key, field string) string {
	m, ok := outputs[key].(map[string]any)
	if !ok {
		return ""
	}
	return stringOf(m, field)
}

func synthesizeAnswer(state *SharedState) string {
	var sb strings.Builder
	sb.WriteString("## Problem\n\n")
	if state.ProblemStatement != "" {
		sb.WriteString(state.ProblemStatement)
	} else {
		sb.WriteString("_No problem statement was produced._")
	}
	sb.WriteString("\n")

	if len(state.Plan) > 0 {
		sb.WriteString("\n## Plan\n\n")
		for i, step := range state.Plan {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
		}
	}

	if len(state.Risks) > 0 {
		sb.WriteString("\n## Risks\n\n")
		for _, r := range state.Risks {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}
	return sb.String()
}
