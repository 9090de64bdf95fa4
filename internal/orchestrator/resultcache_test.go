package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	a := NewSharedState()
	a.ProblemStatement = "Fix login"
	a.Constraints = []string{"x"}

	b := a.Clone()
	b.Risks = []string{"ignored"}
	b.WaveOutputs["analysis"] = "ignored"

	assert.Equal(t, CacheKey(WaveAnalysis, a), CacheKey(WaveAnalysis, b))
	assert.NotEqual(t, CacheKey(WaveAnalysis, a), CacheKey(WaveExecution, a))

	b.Plan = []string{"step"}
	assert.NotEqual(t, CacheKey(WaveAnalysis, a), CacheKey(WaveAnalysis, b))
}

func TestCacheKey_NilAndEmptySlicesMatch(t *testing.T) {
	a := NewSharedState()
	b := NewSharedState()
	b.Constraints = []string{}
	b.Plan = []string{}
	assert.Equal(t, CacheKey(WaveFinalize, a), CacheKey(WaveFinalize, b))
	assert.Len(t, CacheKey(WaveFinalize, a), 64)
}
