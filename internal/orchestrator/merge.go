package orchestrator

import (
	"fmt"
	"sort"
	"strings"
)

// MergeFunc folds the results of a wave into state. valid is keyed by role
// name and only holds results that passed their contract; all holds every
// result, sorted by role. Merge functions record what they did on audit and
// never keep references to result data.
type MergeFunc func(state *SharedState, valid map[string]AgentResult, all []AgentResult, audit *MergeAudit) error

// Merger dispatches a wave's results to the merge function registered for
// the wave name, or to the generic merge.
type Merger struct {
	funcs map[string]MergeFunc
}

// NewMerger creates a Merger with the merges of the default waves.
func NewMerger() *Merger {
	return &Merger{
		funcs: map[string]MergeFunc{
			WaveAnalysis:             mergeAnalysis,
			WavePlanValidateOptimize: mergePlanValidateOptimize,
			WaveExecution:            mergeExecution,
			WaveFinalize:             mergeFinalize,
		},
	}
}

// Register sets the merge function of a wave.
func (m *Merger) Register(wave string, fn MergeFunc) {
	m.funcs[wave] = fn
}

// Merge applies results to state and returns the wave's audit. Results are
// ordered by role before merging, so the outcome does not depend on the
// order in which agents finished. Failed and invalid results are recorded as
// conflicts and left out of the merge.
func (m *Merger) Merge(wave string, state *SharedState, results []AgentResult) (MergeAudit, error) {
	sorted := make([]AgentResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Role < sorted[j].Role })

	audit := MergeAudit{
		Wave:      wave,
		Agents:    make([]string, 0, len(sorted)),
		Deduped:   []string{},
		Conflicts: []string{},
		Merged:    []string{},
	}

	valid := make(map[string]AgentResult, len(sorted))
	for _, r := range sorted {
		role := string(r.Role)
		audit.Agents = append(audit.Agents, role)
		switch {
		case r.Error != "":
			audit.Conflicts = append(audit.Conflicts, fmt.Sprintf("error: %s: %s", role, r.Error))
		case !r.Valid:
			for _, e := range r.ContractErrors {
				audit.Conflicts = append(audit.Conflicts, fmt.Sprintf("contract: %s: %s", role, e))
			}
		default:
			valid[role] = r
		}
	}

	if state.WaveOutputs == nil {
		state.WaveOutputs = make(map[string]any)
	}

	fn, ok := m.funcs[wave]
	if !ok {
		mergeGeneric(wave, state, sorted, &audit)
		return audit, nil
	}
	if err := fn(state, valid, sorted, &audit); err != nil {
		return audit, fmt.Errorf("merge %s: %w", wave, err)
	}
	return audit, nil
}

// mergeGeneric stores every agent's raw output under wave_outputs[wave],
// keyed by role: the parsed object when there is one, the raw text
// otherwise.
func mergeGeneric(wave string, state *SharedState, results []AgentResult, audit *MergeAudit) {
	out := make(map[string]any, len(results))
	for _, r := range results {
		if r.Data != nil {
			out[string(r.Role)] = deepCopy(r.Data)
		} else {
			out[string(r.Role)] = r.RawText
		}
	}
	state.WaveOutputs[wave] = out
	audit.Merged = append(audit.Merged, "wave_outputs."+wave)
}

// dedupInto unions incoming into *field and records the "name: N → M" count
// on the audit. It reports false when nothing was offered.
func dedupInto(field *[]string, name string, audit *MergeAudit, incoming ...[]string) bool {
	offered := 0
	for _, l := range incoming {
		offered += len(l)
	}
	if offered == 0 {
		return false
	}
	before := len(*field) + offered
	*field = union(*field, incoming...)
	audit.Deduped = append(audit.Deduped, fmt.Sprintf("%s: %d → %d", name, before, len(*field)))
	return true
}

// stringsOf reads a string-array field. Non-string items are skipped.
func stringsOf(data map[string]any, key string) []string {
	items, ok := data[key].([]any)
	if !ok {
		if ss, ok := data[key].([]string); ok {
			return cloneStrings(ss)
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringOf(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return strings.TrimSpace(s)
}

// collect gathers a string-array field across roles in sorted role order.
func collect(valid map[string]AgentResult, roles []string, key string) [][]string {
	var out [][]string
	for _, role := range roles {
		if r, ok := valid[role]; ok {
			out = append(out, stringsOf(r.Data, key))
		}
	}
	return out
}

func sortedRoles(valid map[string]AgentResult) []string {
	roles := make([]string, 0, len(valid))
	for role := range valid {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
