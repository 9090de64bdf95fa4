package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCoherence_Clean(t *testing.T) {
	s := NewSharedState()
	s.Plan = []string{"a", "b"}
	s.Constraints = []string{"x"}
	s.Assumptions = []string{"y"}
	assert.Empty(t, CheckCoherence(s))
}

func TestCheckCoherence_RepeatedStep(t *testing.T) {
	s := NewSharedState()
	s.Plan = []string{"Add tests", "Ship", "add tests "}

	issues := CheckCoherence(s)
	require.Len(t, issues, 1)
	assert.Equal(t, "plan", issues[0].Field)
	assert.Contains(t, issues[0].Description, "step 3 repeats step 1")
}

func TestCheckCoherence_ConstraintAlsoAssumed(t *testing.T) {
	s := NewSharedState()
	s.Constraints = []string{"Use Postgres"}
	s.Assumptions = []string{"use postgres", "Traffic is low"}

	issues := CheckCoherence(s)
	require.Len(t, issues, 1)
	assert.Equal(t, "assumptions", issues[0].Field)
}
