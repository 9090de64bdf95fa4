package orchestrator

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dusk-indust/wavecode/internal/agent"
	"github.com/dusk-indust/wavecode/internal/intent"
	"github.com/google/uuid"
)

// EventType identifies an orchestrator event.
type EventType string

const (
	EventChainStart     EventType = "chain-start"
	EventWaveStart      EventType = "wave-start"
	EventWaveCached     EventType = "wave-cached"
	EventAgentStart     EventType = "agent-start"
	EventAgentComplete  EventType = "agent-complete"
	EventAgentFailed    EventType = "agent-failed"
	EventContractFailed EventType = "contract-violation"
	EventContractRetry  EventType = "contract-retry"
	EventMergeComplete  EventType = "merge-complete"
	EventWaveComplete   EventType = "wave-complete"
	EventAdaptiveSkip   EventType = "adaptive-skip"
	EventBudgetExceeded EventType = "budget-exceeded"
	EventChainComplete  EventType = "chain-complete"
	EventChainError     EventType = "chain-error"

	// Advisory only. They never change which waves run.
	EventHighReadiness    EventType = "high-readiness"
	EventEarlyTermination EventType = "early-termination-candidate"
)

// Event is published by the controller in chronological order. Only the
// fields relevant to Type are set.
type Event struct {
	Type  EventType
	RunID string
	Time  time.Time

	Wave      string
	WaveIndex int // 1-based position among the selected waves
	Role      agent.Role
	Agents    []agent.Role
	Errors    []string
	Audit     *MergeAudit
	State     *SharedState
	Result    *ChainResult
	Err       error
	Message   string

	Intent    intent.Type
	Skipped   []string
	Remaining []string

	Score      float64
	Verdict    string
	TokensUsed int
	Budget     int
}

// Bus delivers events to subscribers synchronously. Publishing is
// serialized, so every subscriber sees every event in publish order.
type Bus struct {
	pubMu sync.Mutex

	subMu sync.RWMutex
	subs  map[string]func(Event)
	order []string

	logger *slog.Logger
}

// NewBus creates a Bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[string]func(Event)), logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := uuid.NewString()

	b.subMu.Lock()
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		if _, ok := b.subs[id]; !ok {
			return
		}
		delete(b.subs, id)
		for i, x := range b.order {
			if x == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers ev to every subscriber before returning. A panicking
// subscriber is logged and skipped. Subscribers must not call Publish.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.subMu.RLock()
	handlers := make([]func(Event), 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.subMu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

func (b *Bus) deliver(h func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", "event", ev.Type, "panic", r)
		}
	}()
	h(ev)
}

// FormatEvent formats an event as a human-readable status line.
func FormatEvent(ev Event) string {
	switch ev.Type {
	case EventChainStart:
		return fmt.Sprintf("chain %s started", ev.RunID)
	case EventAdaptiveSkip:
		return fmt.Sprintf("intent %s: skipping %s", ev.Intent, strings.Join(ev.Skipped, ", "))
	case EventWaveStart:
		return fmt.Sprintf("[wave %d] %s (%s)", ev.WaveIndex, ev.Wave, joinRoles(ev.Agents))
	case EventWaveCached:
		return fmt.Sprintf("  ↻ %s served from cache", ev.Wave)
	case EventAgentStart:
		return fmt.Sprintf("  ● %s...", ev.Role)
	case EventAgentComplete:
		return fmt.Sprintf("  ✓ %s complete", ev.Role)
	case EventAgentFailed:
		return fmt.Sprintf("  ✗ %s failed: %v", ev.Role, ev.Err)
	case EventContractFailed:
		return fmt.Sprintf("  ! %s contract violation: %s", ev.Role, strings.Join(ev.Errors, "; "))
	case EventContractRetry:
		return fmt.Sprintf("  ○ %s retrying with correction", joinRoles(ev.Agents))
	case EventMergeComplete:
		if ev.Audit != nil && len(ev.Audit.Conflicts) > 0 {
			return fmt.Sprintf("  merged %s with %d conflict(s)", ev.Wave, len(ev.Audit.Conflicts))
		}
		return fmt.Sprintf("  merged %s", ev.Wave)
	case EventWaveComplete:
		return fmt.Sprintf("[wave %d] %s complete (%d tokens used)", ev.WaveIndex, ev.Wave, ev.TokensUsed)
	case EventBudgetExceeded:
		return fmt.Sprintf("token budget exceeded (%d > %d), stopping before %s", ev.TokensUsed, ev.Budget, ev.Wave)
	case EventHighReadiness:
		return fmt.Sprintf("  readiness score %.0f", ev.Score)
	case EventEarlyTermination:
		return fmt.Sprintf("  monitor verdict %q", ev.Verdict)
	case EventChainComplete:
		if ev.Result != nil {
			return fmt.Sprintf("chain %s complete in %s", ev.RunID, ev.Result.Duration.Round(time.Millisecond))
		}
		return fmt.Sprintf("chain %s complete", ev.RunID)
	case EventChainError:
		return fmt.Sprintf("chain %s failed: %v", ev.RunID, ev.Err)
	default:
		return fmt.Sprintf("  ? %s", ev.Type)
	}
}

func joinRoles(roles []agent.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
