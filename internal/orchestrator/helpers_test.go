package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"regexp"
	"sync"

	"github.com/dusk-indust/wavecode/internal/agent"
	"github.com/dusk-indust/wavecode/internal/llm"
)

var systemRoleRe = regexp.MustCompile(`agent \(([a-z0-9_]+)\)`)

// roleOf recovers the calling role from the system prompt.
func roleOf(req llm.Request) agent.Role {
	for _, m := range req.Messages {
		if m.Role != llm.RoleSystem {
			continue
		}
		if match := systemRoleRe.FindStringSubmatch(m.Content); match != nil {
			return agent.Role(match[1])
		}
	}
	return ""
}

type replyFunc func(role agent.Role, attempt int, req llm.Request) (*llm.Response, error)

// scriptedBackend answers each role with replies, falling back to a valid
// default for roles replies leaves to it (by returning nil, nil).
type scriptedBackend struct {
	mu      sync.Mutex
	calls   map[agent.Role]int
	reqs    map[agent.Role][]llm.Request
	replies replyFunc
	tokens  map[agent.Role]int
}

func newScripted(replies replyFunc) *scriptedBackend {
	return &scriptedBackend{
		calls:   make(map[agent.Role]int),
		reqs:    make(map[agent.Role][]llm.Request),
		replies: replies,
		tokens:  make(map[agent.Role]int),
	}
}

func (s *scriptedBackend) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	role := roleOf(req)
	s.mu.Lock()
	s.calls[role]++
	attempt := s.calls[role]
	s.reqs[role] = append(s.reqs[role], req)
	tokens, ok := s.tokens[role]
	s.mu.Unlock()
	if !ok {
		tokens = 10
	}

	if s.replies != nil {
		resp, err := s.replies(role, attempt, req)
		if resp != nil || err != nil {
			if resp != nil && resp.Usage == nil {
				resp.Usage = &llm.Usage{CompletionTokens: tokens}
			}
			return resp, err
		}
	}
	return jsonResponse(defaultReply(role), tokens), nil
}

func (s *scriptedBackend) callCount(role agent.Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[role]
}

func (s *scriptedBackend) requests(role agent.Role) []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.reqs[role]...)
}

func (s *scriptedBackend) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func jsonResponse(v any, tokens int) *llm.Response {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return &llm.Response{Content: string(data), Usage: &llm.Usage{CompletionTokens: tokens}}
}

func textResponse(s string) *llm.Response {
	return &llm.Response{Content: s}
}

// defaultReply is a contract-valid answer for role.
func defaultReply(role agent.Role) map[string]any {
	switch role {
	case agent.RoleIngest:
		return map[string]any{
			"problem_statement":   "Add rate limiting to the login endpoint",
			"success_criteria":    []string{"Requests over the limit get 429"},
			"constraints":         []string{"No new infrastructure"},
			"assumptions":         []string{"Single instance deployment"},
			"artifacts_to_update": []string{"internal/auth/login.go"},
		}
	case agent.RoleAnalyzerA, agent.RoleAnalyzerB:
		return map[string]any{
			"key_insights":                  []string{"Login has no throttling"},
			"constraints_found":             []string{"Keep the public API unchanged"},
			"assumptions":                   []string{"Clients retry on 429"},
			"risks":                         []string{"Legitimate users locked out"},
			"recommendations_for_next_wave": []string{"Use a token bucket per IP"},
		}
	case agent.RolePlanner:
		return map[string]any{
			"step_by_step_plan": []string{"Add limiter middleware", "Wire it into the login route"},
			"deliverables":      []string{"internal/auth/limiter.go"},
		}
	case agent.RoleValidator:
		return map[string]any{
			"readiness_score": 80,
			"edge_cases":      []string{"Shared NAT addresses"},
			"risk_register": []map[string]any{
				{"risk": "Memory growth", "severity": "medium", "mitigation": "Evict idle buckets"},
			},
			"contradictions_or_gaps": []string{},
		}
	case agent.RoleOptimizer:
		return map[string]any{
			"simplifications":            []string{"Reuse x/time/rate"},
			"modularization_suggestions": []string{"Keep the limiter in its own package"},
		}
	case agent.RoleExecutor1, agent.RoleExecutor2:
		return map[string]any{
			"concrete_output":   "output of " + string(role),
			"integration_steps": []string{"Register middleware"},
			"tests_or_checks":   []string{"Hit the endpoint 11 times"},
		}
	case agent.RoleMonitor:
		return map[string]any{"verdict": "warn", "issues": []string{"No load test"}}
	case agent.RoleReporter:
		return map[string]any{"final_answer": "reporter answer"}
	case agent.RoleCleaner:
		return map[string]any{"cleaned_output": "cleaned answer"}
	}
	return map[string]any{}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestController builds a controller with every wave enabled unless cfg
// says otherwise.
func newTestController(b llm.Backend, cfg Config, opts ...Option) *Controller {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewController(b, cfg, opts...)
}

// eventRecorder collects events from a bus subscription.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *eventRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
