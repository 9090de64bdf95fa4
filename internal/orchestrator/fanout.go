package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/dusk-indust/wavecode/internal/agent"
	"github.com/dusk-indust/wavecode/internal/llm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Call is a single model call within a wave.
type Call struct {
	Role    agent.Role
	Request llm.Request
}

// CallResult is the settled outcome of a Call.
type CallResult struct {
	Role     agent.Role
	Response *llm.Response
	Err      error
	Duration time.Duration
}

// FanOut runs the calls of a wave concurrently and waits for every one of
// them to settle. A failing call never cancels its siblings.
type FanOut struct {
	backend llm.Backend
	tracer  trace.Tracer
	emit    func(Event)
}

// NewFanOut creates a FanOut. emit may be nil.
func NewFanOut(backend llm.Backend, tracer trace.Tracer, emit func(Event)) *FanOut {
	return &FanOut{backend: backend, tracer: tracer, emit: emit}
}

// Run dispatches every call in parallel. Results are indexed like calls,
// whatever order they complete in. A panicking backend is reported as that
// call's error.
func (f *FanOut) Run(ctx context.Context, wave string, calls []Call) []CallResult {
	results := make([]CallResult, len(calls))

	// Goroutines always return nil, so one failure leaves the others running.
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			results[i] = f.call(ctx, wave, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *FanOut) call(ctx context.Context, wave string, call Call) (res CallResult) {
	ctx, span := f.tracer.Start(ctx, "chain.agent", trace.WithAttributes(
		attribute.String("wave", wave),
		attribute.String("role", string(call.Role)),
	))
	defer span.End()

	f.publish(Event{Type: EventAgentStart, Wave: wave, Role: call.Role})
	start := time.Now()
	res.Role = call.Role

	defer func() {
		if p := recover(); p != nil {
			res.Response = nil
			res.Err = fmt.Errorf("agent %s panicked: %v", call.Role, p)
		}
		res.Duration = time.Since(start)

		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			f.publish(Event{Type: EventAgentFailed, Wave: wave, Role: call.Role, Err: res.Err})
			return
		}
		span.SetAttributes(attribute.Int("tokens", res.Response.Usage.Total()))
		f.publish(Event{Type: EventAgentComplete, Wave: wave, Role: call.Role})
	}()

	resp, err := f.backend.Complete(ctx, call.Request)
	if err == nil && resp == nil {
		err = fmt.Errorf("agent %s: backend returned no response", call.Role)
	}
	res.Response, res.Err = resp, err
	return res
}

func (f *FanOut) publish(ev Event) {
	if f.emit != nil {
		f.emit(ev)
	}
}
