package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Compile-time interface check.
var _ Backend = (*LimitedBackend)(nil)

// LimitedBackend paces calls to the wrapped backend with a token bucket.
type LimitedBackend struct {
	next    Backend
	limiter *rate.Limiter
}

// Limited wraps next so that each call waits on limiter first. A nil limiter
// returns next unchanged.
func Limited(next Backend, limiter *rate.Limiter) Backend {
	if limiter == nil {
		return next
	}
	return &LimitedBackend{next: next, limiter: limiter}
}

// Complete waits for a token and then calls the wrapped backend.
func (l *LimitedBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm: rate limit wait: %w", err)
	}
	return l.next.Complete(ctx, req)
}
