package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dusk-indust/wavecode/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubContext_MessagesForAPI(t *testing.T) {
	m := NewManager()
	sc := m.CreateSubContext("run/analysis/analyzer_a", "you analyze")
	sc.AddMessage(llm.RoleUser, "task")
	sc.AddMessage(llm.RoleAssistant, "answer")
	sc.AddMessage(llm.RoleUser, "fix it")

	msgs := sc.MessagesForAPI()
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "you analyze"}, msgs[0])
	assert.Equal(t, "fix it", msgs[3].Content)
	assert.Equal(t, 3, sc.Len())

	// The returned slice is a copy.
	msgs[1].Content = "mutated"
	assert.Equal(t, "task", sc.MessagesForAPI()[1].Content)
}

func TestSubContext_NoSystemPrompt(t *testing.T) {
	sc := NewManager().CreateSubContext("x", "")
	sc.AddMessage(llm.RoleUser, "hi")
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, sc.MessagesForAPI())
}

func TestManager_Isolation(t *testing.T) {
	m := NewManager()
	a := m.CreateSubContext("a", "sys")
	b := m.CreateSubContext("b", "sys")
	a.AddMessage(llm.RoleUser, "only a")

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 0, b.Len())
}

func TestManager_Discard(t *testing.T) {
	m := NewManager()
	m.CreateSubContext("a", "")
	m.CreateSubContext("b", "")
	require.Equal(t, 2, m.Len())

	m.Discard("a")
	m.Discard("missing")
	assert.Equal(t, 1, m.Len())

	_, ok := m.Get("a")
	assert.False(t, ok)
	sc, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", sc.ID())
}

func TestManager_ConcurrentCreate(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sc := m.CreateSubContext(fmt.Sprintf("ctx-%d", i), "sys")
			sc.AddMessage(llm.RoleUser, "m")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}
