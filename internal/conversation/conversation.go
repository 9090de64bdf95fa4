// Package conversation keeps the isolated message history of each agent
// call. A sub-context starts from the role's system prompt and only ever
// sees messages added to it.
package conversation

import (
	"sync"

	"github.com/dusk-indust/wavecode/internal/llm"
)

// SubContext is the message history of a single agent call.
type SubContext struct {
	id string

	mu       sync.Mutex
	system   string
	messages []llm.Message
}

// ID returns the identifier the sub-context was created with.
func (s *SubContext) ID() string { return s.id }

// AddMessage appends a message. Role is one of llm.RoleUser or
// llm.RoleAssistant.
func (s *SubContext) AddMessage(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, llm.Message{Role: role, Content: content})
}

// MessagesForAPI returns the system prompt followed by every added message,
// in order. The returned slice is a copy.
func (s *SubContext) MessagesForAPI() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]llm.Message, 0, len(s.messages)+1)
	if s.system != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: s.system})
	}
	return append(out, s.messages...)
}

// Len returns the number of added messages, excluding the system prompt.
func (s *SubContext) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Manager tracks live sub-contexts by ID.
type Manager struct {
	mu   sync.RWMutex
	live map[string]*SubContext
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{live: make(map[string]*SubContext)}
}

// CreateSubContext creates a sub-context seeded with systemPrompt. Creating
// an ID that is still live replaces the previous sub-context.
func (m *Manager) CreateSubContext(id, systemPrompt string) *SubContext {
	sc := &SubContext{id: id, system: systemPrompt}

	m.mu.Lock()
	m.live[id] = sc
	m.mu.Unlock()
	return sc
}

// Get returns the live sub-context with the given ID.
func (m *Manager) Get(id string) (*SubContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.live[id]
	return sc, ok
}

// Discard forgets a sub-context. Discarding an unknown ID is a no-op.
func (m *Manager) Discard(id string) {
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
}

// Len returns the number of live sub-contexts.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}
