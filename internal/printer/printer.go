// Package printer renders orchestrator events and command messages on the
// terminal.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dusk-indust/wavecode/internal/orchestrator"
	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
)

// Progress writes one colored line per orchestrator event. It is safe to
// subscribe to a bus shared by concurrent runs.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// NewProgress creates a Progress writing to w. Agent start lines are only
// shown when verbose is set.
func NewProgress(w io.Writer, verbose bool) *Progress {
	return &Progress{w: w, verbose: verbose}
}

// Handle renders ev. Its signature matches orchestrator subscribers.
func (p *Progress) Handle(ev orchestrator.Event) {
	c, show := p.style(ev)
	if !show {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c.Fprintln(p.w, orchestrator.FormatEvent(ev))
}

func (p *Progress) style(ev orchestrator.Event) (*color.Color, bool) {
	switch ev.Type {
	case orchestrator.EventAgentStart:
		return faint, p.verbose
	case orchestrator.EventChainStart, orchestrator.EventWaveStart, orchestrator.EventWaveComplete:
		return bold, true
	case orchestrator.EventAgentComplete, orchestrator.EventChainComplete:
		return green, true
	case orchestrator.EventAgentFailed, orchestrator.EventChainError:
		return red, true
	case orchestrator.EventContractFailed, orchestrator.EventContractRetry, orchestrator.EventBudgetExceeded:
		return yellow, true
	case orchestrator.EventMergeComplete:
		if ev.Audit != nil && len(ev.Audit.Conflicts) > 0 {
			return yellow, true
		}
		return faint, true
	default:
		return cyan, true
	}
}

// Success prints a success message in green with a checkmark prefix.
func Success(w io.Writer, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprintln(w, msg)
}

// Warning prints a warning in yellow.
func Warning(w io.Writer, format string, a ...any) {
	yellow.Fprintf(w, "! %s\n", fmt.Sprintf(format, a...))
}

// Error prints a title in red followed by an explanation and suggestions to
// stderr, and returns a plain error carrying the title.
func Error(title, explanation string, suggestions ...string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(os.Stderr, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(os.Stderr, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, s)
		}
	}
	return fmt.Errorf("%s", title)
}

// Heading prints a bold section heading.
func Heading(w io.Writer, title string) {
	bold.Fprintf(w, "\n%s\n\n", title)
}
