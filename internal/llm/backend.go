// Package llm defines the model backend used by the wave orchestrator and
// the providers, retry policy and provider fallback behind it.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrNoProviders is returned when a fallback chain has nothing to call.
	ErrNoProviders = errors.New("llm: no providers configured")

	// ErrUnknownProvider is returned by NewProvider for a provider name it
	// cannot build.
	ErrUnknownProvider = errors.New("llm: unknown provider")
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON schema
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Total returns prompt plus completion tokens. A nil Usage counts as zero.
func (u *Usage) Total() int {
	if u == nil {
		return 0
	}
	return u.PromptTokens + u.CompletionTokens
}

// Request is a single completion request.
type Request struct {
	// Provider selects the backend provider. Empty means the default order.
	Provider string

	// Model overrides the provider's default model when non-empty.
	Model string

	Messages    []Message
	Tools       []Tool
	MaxTokens   int
	Temperature float32
}

// Response is the outcome of a successful completion.
type Response struct {
	Content   string
	Usage     *Usage
	ToolCalls []ToolCall

	// Provider is the provider that actually served the request.
	Provider string
}

// Backend executes one model call.
type Backend interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// BackendFunc adapts a plain function to the Backend interface.
type BackendFunc func(ctx context.Context, req Request) (*Response, error)

// Complete calls f.
func (f BackendFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
