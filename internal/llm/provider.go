package llm

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Provider names accepted by NewProvider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ProviderSettings describes one configured provider.
type ProviderSettings struct {
	APIKey  string
	BaseURL string
	Model   string
}

// StackSettings controls the decorators applied to every provider.
type StackSettings struct {
	MaxRetries      int
	InitialInterval time.Duration
	AttemptTimeout  time.Duration

	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int

	Logger *slog.Logger
}

// NewProvider builds the raw provider called name.
func NewProvider(name string, s ProviderSettings) (Backend, error) {
	switch name {
	case ProviderOpenAI:
		return NewOpenAIProvider(s.APIKey, s.BaseURL, s.Model), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(s.APIKey, s.Model, WithAnthropicBaseURL(s.BaseURL)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// NewStack builds every provider, wraps each with rate limiting and retries,
// and joins them into a fallback chain following order.
func NewStack(providers map[string]ProviderSettings, order []string, st StackSettings) (*FallbackBackend, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	logger := st.Logger
	if logger == nil {
		logger = slog.Default()
	}

	wrapped := make(map[string]Backend, len(providers))
	for name, ps := range providers {
		p, err := NewProvider(name, ps)
		if err != nil {
			return nil, err
		}

		var limiter *rate.Limiter
		if st.RequestsPerSecond > 0 {
			burst := st.Burst
			if burst <= 0 {
				burst = 1
			}
			limiter = rate.NewLimiter(rate.Limit(st.RequestsPerSecond), burst)
		}

		retryOpts := []RetryOption{WithRetryLogger(logger.With("provider", name))}
		if st.MaxRetries > 0 {
			retryOpts = append(retryOpts, WithMaxRetries(st.MaxRetries))
		}
		retryOpts = append(retryOpts,
			WithInitialInterval(st.InitialInterval),
			WithAttemptTimeout(st.AttemptTimeout),
		)

		wrapped[name] = Retrying(Limited(p, limiter), retryOpts...)
	}
	return Fallback(order, wrapped, logger), nil
}
