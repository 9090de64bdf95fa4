package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/wavecode/internal/orchestrator"
)

// GenerateMermaid produces a Mermaid graph LR diagram of the wave topology:
// ingest, one subgraph per wave holding its agents, then the answer. When
// result is non-nil every wave is styled by what happened to it in that run.
func GenerateMermaid(waves []orchestrator.WaveConfig, result *orchestrator.ChainResult) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")
	sb.WriteString("  ingest([\"ingest\"])\n")

	prev := "ingest"
	for i, w := range waves {
		id := fmt.Sprintf("W%d", i+1)
		fmt.Fprintf(&sb, "  subgraph %s[\"%d. %s\"]\n", id, i+1, w.Name)
		for _, role := range w.Agents {
			fmt.Fprintf(&sb, "    %s_%s[\"%s\"]\n", id, role, role)
		}
		sb.WriteString("  end\n")
		fmt.Fprintf(&sb, "  %s --> %s\n", prev, id)
		prev = id
	}
	sb.WriteString("  answer([\"final answer\"])\n")
	fmt.Fprintf(&sb, "  %s --> answer\n", prev)

	if result == nil {
		return sb.String()
	}

	sb.WriteString("  classDef executed fill:#d4edda,stroke:#28a745\n")
	sb.WriteString("  classDef cached fill:#d1ecf1,stroke:#17a2b8\n")
	sb.WriteString("  classDef skipped fill:#eeeeee,stroke:#999999,stroke-dasharray: 4 4\n")
	sb.WriteString("  classDef notreached fill:#fff3cd,stroke:#ffc107\n")
	statuses := waveStatuses(result)
	for i, w := range waves {
		class := strings.ReplaceAll(statuses[w.Name], "-", "")
		if class == "" {
			class = "notreached"
		}
		fmt.Fprintf(&sb, "  class W%d %s\n", i+1, class)
	}
	return sb.String()
}

func waveStatuses(result *orchestrator.ChainResult) map[string]string {
	out := make(map[string]string)
	for _, w := range result.SkippedWaves {
		out[w] = StatusSkipped
	}
	for _, w := range result.ExecutedWaves() {
		out[w] = StatusExecuted
	}
	for _, w := range result.CachedWaves {
		out[w] = StatusCached
	}
	return out
}
