package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Compile-time interface check.
var _ Backend = (*FallbackBackend)(nil)

// FallbackBackend routes a request to the provider it names and falls over
// to the remaining providers, in order, when that provider fails.
type FallbackBackend struct {
	order     []string
	providers map[string]Backend
	logger    *slog.Logger
}

// Fallback creates a FallbackBackend. Providers missing from order are
// appended to it sorted by name, so every registered provider is reachable
// and the fallback order is the same on every run.
func Fallback(order []string, providers map[string]Backend, logger *slog.Logger) *FallbackBackend {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]bool, len(providers))
	var full []string
	for _, name := range order {
		if _, ok := providers[name]; ok && !seen[name] {
			seen[name] = true
			full = append(full, name)
		}
	}
	var extra []string
	for name := range providers {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	full = append(full, extra...)
	return &FallbackBackend{order: full, providers: providers, logger: logger}
}

// Providers returns the provider names in fallback order.
func (f *FallbackBackend) Providers() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Complete tries the requested provider first and then every other
// provider. The model override only applies to the requested provider.
func (f *FallbackBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(f.order) == 0 {
		return nil, ErrNoProviders
	}

	seq := f.sequence(req.Provider)
	if req.Provider != "" && seq[0] != req.Provider {
		f.logger.Warn("requested provider not configured, using fallback order",
			"provider", req.Provider)
	}

	var errs []error
	for i, name := range seq {
		r := req
		r.Provider = name
		if name != req.Provider {
			r.Model = ""
		}

		resp, err := f.providers[name].Complete(ctx, r)
		recordRequest(name, resp, err)
		if err == nil {
			resp.Provider = name
			return resp, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		if ctx.Err() != nil {
			break
		}
		if i < len(seq)-1 {
			f.logger.Warn("provider failed, falling back",
				"provider", name, "next", seq[i+1], "error", err)
		}
	}
	return nil, fmt.Errorf("llm: all providers failed: %w", errors.Join(errs...))
}

// sequence returns the provider names to try for a request naming want.
func (f *FallbackBackend) sequence(want string) []string {
	if _, ok := f.providers[want]; !ok {
		return f.order
	}
	seq := make([]string, 0, len(f.order))
	seq = append(seq, want)
	for _, name := range f.order {
		if name != want {
			seq = append(seq, name)
		}
	}
	return seq
}
