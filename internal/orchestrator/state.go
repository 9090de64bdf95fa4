package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// SharedState is the accumulator threaded through every wave. It has a
// single writer: the controller, between waves. Agents only see a JSON
// snapshot of it.
type SharedState struct {
	ProblemStatement   string         `json:"problem_statement"`
	SuccessCriteria    []string       `json:"success_criteria"`
	Constraints        []string       `json:"constraints"`
	Assumptions        []string       `json:"assumptions"`
	Risks              []string       `json:"risks"`
	Plan               []string       `json:"plan"`
	ArtifactsToUpdate  []string       `json:"artifacts_to_update"`
	FinalAnswerOutline string         `json:"final_answer_outline"`
	WaveOutputs        map[string]any `json:"wave_outputs"`
}

// NewSharedState returns an empty state.
func NewSharedState() *SharedState {
	return &SharedState{WaveOutputs: make(map[string]any)}
}

// Snapshot renders the state as indented JSON for agent prompts.
func (s *SharedState) Snapshot() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return s.ProblemStatement
	}
	return string(data)
}

// Clone returns a deep copy of the state.
func (s *SharedState) Clone() *SharedState {
	out := *s
	out.SuccessCriteria = cloneStrings(s.SuccessCriteria)
	out.Constraints = cloneStrings(s.Constraints)
	out.Assumptions = cloneStrings(s.Assumptions)
	out.Risks = cloneStrings(s.Risks)
	out.Plan = cloneStrings(s.Plan)
	out.ArtifactsToUpdate = cloneStrings(s.ArtifactsToUpdate)
	out.WaveOutputs = make(map[string]any, len(s.WaveOutputs))
	for k, v := range s.WaveOutputs {
		out.WaveOutputs[k] = deepCopy(v)
	}
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = deepCopy(x)
		}
		return m
	case []any:
		a := make([]any, len(t))
		for i, x := range t {
			a[i] = deepCopy(x)
		}
		return a
	case []string:
		return cloneStrings(t)
	default:
		return v
	}
}

// contentHash is the dedup identity of a set entry: trimmed, lowercased,
// then hashed.
func contentHash(s string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(s))))
	return hex.EncodeToString(sum[:])
}

// union appends the entries of incoming to existing, skipping blanks and any
// entry whose content hash is already present. Existing entries keep their
// position; existing duplicates are collapsed too.
func union(existing []string, incoming ...[]string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(existing))
	add := func(s string) {
		if strings.TrimSpace(s) == "" {
			return
		}
		h := contentHash(s)
		if seen[h] {
			return
		}
		seen[h] = true
		out = append(out, strings.TrimSpace(s))
	}
	for _, s := range existing {
		add(s)
	}
	for _, list := range incoming {
		for _, s := range list {
			add(s)
		}
	}
	return out
}
