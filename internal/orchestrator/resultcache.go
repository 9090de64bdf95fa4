package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CacheEntry is what the result cache stores per wave execution.
type CacheEntry struct {
	Results []AgentResult `json:"results"`
	Audit   MergeAudit    `json:"audit"`
}

type cacheKeyInput struct {
	ProblemStatement string   `json:"problem_statement"`
	Constraints      []string `json:"constraints"`
	Plan             []string `json:"plan"`
}

// CacheKey hashes the wave name with the canonical JSON of the state fields
// that determine a wave's prompts.
func CacheKey(wave string, state *SharedState) string {
	in := cacheKeyInput{
		ProblemStatement: state.ProblemStatement,
		Constraints:      state.Constraints,
		Plan:             state.Plan,
	}
	if in.Constraints == nil {
		in.Constraints = []string{}
	}
	if in.Plan == nil {
		in.Plan = []string{}
	}
	// A struct of strings and string slices always marshals.
	data, _ := json.Marshal(in)

	h := sha256.New()
	h.Write([]byte(wave))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
