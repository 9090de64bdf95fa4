package orchestrator

import "github.com/dusk-indust/wavecode/internal/intent"

// skipByIntent lists the waves that add nothing for a given intent.
var skipByIntent = map[intent.Type][]string{
	intent.TypeDocs:     {WaveExecution},
	intent.TypeResearch: {WaveExecution},
	intent.TypeTest:     {WaveAnalysis},
	intent.TypeReview:   {WaveExecution},
	intent.TypePlan:     {WaveExecution},
}

// SelectWaves drops the waves the intent makes redundant, keeping order. If
// nothing would remain, every wave is kept and skipped is nil.
func SelectWaves(waves []WaveConfig, it intent.Type) (selected []WaveConfig, skipped []string) {
	skip := make(map[string]bool)
	for _, name := range skipByIntent[it] {
		skip[name] = true
	}

	for _, w := range waves {
		if skip[w.Name] {
			skipped = append(skipped, w.Name)
			continue
		}
		selected = append(selected, w)
	}

	if len(selected) == 0 {
		return waves, nil
	}
	return selected, skipped
}

func waveNames(waves []WaveConfig) []string {
	names := make([]string, len(waves))
	for i, w := range waves {
		names[i] = w.Name
	}
	return names
}
