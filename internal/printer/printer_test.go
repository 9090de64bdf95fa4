package printer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dusk-indust/wavecode/internal/agent"
	"github.com/dusk-indust/wavecode/internal/orchestrator"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestProgress_Handle(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, false)

	p.Handle(orchestrator.Event{Type: orchestrator.EventAgentStart, Role: agent.RolePlanner})
	p.Handle(orchestrator.Event{Type: orchestrator.EventAgentFailed, Role: agent.RolePlanner, Err: errors.New("timeout")})
	p.Handle(orchestrator.Event{Type: orchestrator.EventWaveCached, Wave: "analysis"})

	assert.Equal(t, "  ✗ planner failed: timeout\n  ↻ analysis served from cache\n", buf.String())
}

func TestProgress_VerboseShowsAgentStart(t *testing.T) {
	var buf bytes.Buffer
	NewProgress(&buf, true).Handle(orchestrator.Event{Type: orchestrator.EventAgentStart, Role: agent.RoleReporter})
	assert.Equal(t, "  ● reporter...\n", buf.String())
}

func TestSuccessAndWarning(t *testing.T) {
	var buf bytes.Buffer
	Success(&buf, "saved run %s", "abc")
	Success(&buf, "✓ already marked")
	Warning(&buf, "no history")
	assert.Equal(t, "✓ saved run abc\n✓ already marked\n! no history\n", buf.String())
}

func TestError(t *testing.T) {
	err := Error("No providers configured", "Set an API key.", "export OPENAI_API_KEY=...")
	assert.EqualError(t, err, "No providers configured")
}
