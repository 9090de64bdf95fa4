package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default retry policy: 2s, 4s, 8s, 16s.
const (
	DefaultMaxRetries      = 4
	DefaultInitialInterval = 2 * time.Second
)

// Compile-time interface check.
var _ Backend = (*RetryingBackend)(nil)

// RetryingBackend retries transient failures of the wrapped backend with
// bounded exponential backoff.
type RetryingBackend struct {
	next           Backend
	maxRetries     int
	initial        time.Duration
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// RetryOption configures a RetryingBackend.
type RetryOption func(*RetryingBackend)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) RetryOption {
	return func(r *RetryingBackend) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithInitialInterval sets the first backoff delay; each retry doubles it.
func WithInitialInterval(d time.Duration) RetryOption {
	return func(r *RetryingBackend) {
		if d > 0 {
			r.initial = d
		}
	}
}

// WithAttemptTimeout bounds each individual attempt. A timed-out attempt is
// retried as long as the caller's context is still alive.
func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(r *RetryingBackend) {
		r.attemptTimeout = d
	}
}

// WithRetryLogger sets the logger used to report retries.
func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(r *RetryingBackend) {
		if l != nil {
			r.logger = l
		}
	}
}

// Retrying wraps next with the default retry policy, adjusted by opts.
func Retrying(next Backend, opts ...RetryOption) *RetryingBackend {
	r := &RetryingBackend{
		next:       next,
		maxRetries: DefaultMaxRetries,
		initial:    DefaultInitialInterval,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Complete calls the wrapped backend, retrying errors for which IsRetryable
// is true. Non-retryable errors and context cancellation return immediately.
func (r *RetryingBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	attempt := 0

	op := func() error {
		attempt++
		out, err := r.attempt(ctx, req)
		if err == nil {
			resp = out
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("llm call failed, retrying",
			"provider", req.Provider, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, r.policy(ctx), notify); err != nil {
		if attempt > 1 && IsRetryable(err) {
			return nil, &RetriesExhaustedError{Attempts: attempt, Err: err}
		}
		return nil, err
	}
	return resp, nil
}

func (r *RetryingBackend) attempt(ctx context.Context, req Request) (*Response, error) {
	if r.attemptTimeout <= 0 {
		return r.next.Complete(ctx, req)
	}
	actx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	return r.next.Complete(actx, req)
}

func (r *RetryingBackend) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = r.initial << r.maxRetries
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxRetries)), ctx)
}

// RetriesExhaustedError is returned when every attempt failed transiently.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("llm: giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err came from a backend that ran out of retries.
func IsExhausted(err error) bool {
	var re *RetriesExhaustedError
	return errors.As(err, &re)
}
