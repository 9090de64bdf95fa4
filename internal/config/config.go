package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dusk-indust/wavecode/internal/agent"
	"github.com/dusk-indust/wavecode/internal/llm"
	"github.com/dusk-indust/wavecode/internal/orchestrator"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Load and Validate.
var ErrInvalid = errors.New("config: invalid")

// Environment variables that override the file.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvTokenBudget  = "WAVECODE_TOKEN_BUDGET"
	EnvRedisAddr    = "WAVECODE_REDIS_ADDR"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

var defaultKeyEnv = map[string]string{
	llm.ProviderOpenAI:    EnvOpenAIKey,
	llm.ProviderAnthropic: EnvAnthropicKey,
}

// ProviderConfig configures one model provider.
type ProviderConfig struct {
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"baseURL,omitempty" validate:"omitempty,url"`
	// APIKeyEnv names the variable holding the key. It defaults to
	// OPENAI_API_KEY or ANTHROPIC_API_KEY.
	APIKeyEnv string `yaml:"apiKeyEnv,omitempty"`

	// APIKey is resolved from the environment, never read from the file.
	APIKey string `yaml:"-"`
}

// RoleConfig routes one role to a provider and model.
type RoleConfig struct {
	Provider string `yaml:"provider,omitempty" validate:"omitempty,oneof=openai anthropic"`
	Model    string `yaml:"model,omitempty"`
}

// CacheConfig selects and sizes the result cache.
type CacheConfig struct {
	Backend   string `yaml:"backend,omitempty" validate:"omitempty,oneof=memory redis"`
	Capacity  int    `yaml:"capacity,omitempty" validate:"gte=0"`
	RedisAddr string `yaml:"redisAddr,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// RetryConfig controls backend retries.
type RetryConfig struct {
	MaxRetries      int           `yaml:"maxRetries,omitempty" validate:"gte=0,lte=10"`
	InitialInterval time.Duration `yaml:"initialInterval,omitempty" validate:"gte=0"`
	CallTimeout     time.Duration `yaml:"callTimeout,omitempty" validate:"gte=0"`
}

// RateLimitConfig paces requests per provider.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty" validate:"gte=0"`
	Burst             int     `yaml:"burst,omitempty" validate:"gte=0"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// ProjectConfig holds project-level settings loaded from wavecode.yml.
type ProjectConfig struct {
	DefaultProvider string                    `yaml:"defaultProvider,omitempty" validate:"omitempty,oneof=openai anthropic"`
	FallbackOrder   []string                  `yaml:"fallbackOrder,omitempty" validate:"dive,oneof=openai anthropic"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty" validate:"dive,keys,oneof=openai anthropic,endkeys"`

	Waves []orchestrator.WaveConfig `yaml:"waves,omitempty"`
	Roles map[string]RoleConfig     `yaml:"roles,omitempty" validate:"dive"`

	TokenBudget         int                `yaml:"tokenBudget,omitempty" validate:"gte=0"`
	BudgetFractions     map[string]float64 `yaml:"budgetFractions,omitempty" validate:"dive,gte=0,lte=1"`
	MaxTokensPerCall    int                `yaml:"maxTokensPerCall,omitempty" validate:"gte=0"`
	Temperature         float32            `yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
	DisableAdaptiveSkip bool               `yaml:"disableAdaptiveSkip,omitempty"`

	Cache       CacheConfig     `yaml:"cache,omitempty"`
	HistoryPath string          `yaml:"historyPath,omitempty"`
	Retry       RetryConfig     `yaml:"retry,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rateLimit,omitempty"`
	Log         LogConfig       `yaml:"log,omitempty"`

	// Source is the file the config was read from, empty for defaults.
	Source string `yaml:"-"`
}

// Default returns the configuration used when no file exists.
func Default() *ProjectConfig {
	return &ProjectConfig{
		DefaultProvider: llm.ProviderOpenAI,
		FallbackOrder:   []string{llm.ProviderOpenAI, llm.ProviderAnthropic},
		Providers: map[string]ProviderConfig{
			llm.ProviderOpenAI:    {Model: "gpt-4o-mini"},
			llm.ProviderAnthropic: {Model: "claude-3-5-haiku-latest"},
		},
		Waves:       orchestrator.DefaultWaves(),
		Temperature: 0.2,
		Cache:       CacheConfig{Backend: CacheMemory, Capacity: 100},
		HistoryPath: filepath.Join(".wavecode", "history.db"),
		Retry: RetryConfig{
			MaxRetries:      llm.DefaultMaxRetries,
			InitialInterval: llm.DefaultInitialInterval,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load attempts to read wavecode.yml or wavecode.yaml from the given
// directory, applies environment overrides and validates the result.
// Returns the defaults (not an error) if no config file exists. A relative
// historyPath is resolved against dir.
func Load(dir string) (*ProjectConfig, error) {
	cfg := Default()
	for _, name := range []string{"wavecode.yml", "wavecode.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.Source = path
		break
	}

	if cfg.HistoryPath != "" && !filepath.IsAbs(cfg.HistoryPath) {
		cfg.HistoryPath = filepath.Join(dir, cfg.HistoryPath)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ProjectConfig) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvTokenBudget); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, EnvTokenBudget, v)
		}
		c.TokenBudget = n
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Cache.RedisAddr = v
		if c.Cache.Backend == "" || c.Cache.Backend == CacheMemory {
			c.Cache.Backend = CacheRedis
		}
	}

	for name, p := range c.Providers {
		env := p.APIKeyEnv
		if env == "" {
			env = defaultKeyEnv[name]
		}
		if v, ok := lookup(env); ok {
			p.APIKey = strings.TrimSpace(v)
		}
		c.Providers[name] = p
	}
	return nil
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules: wave names are
// unique and non-empty, every wave has distinct agents, budget fractions
// name configured waves, and a redis cache has an address.
func (c *ProjectConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var problems []string
	waves := make(map[string]bool, len(c.Waves))
	for i, w := range c.Waves {
		if strings.TrimSpace(w.Name) == "" {
			problems = append(problems, fmt.Sprintf("wave %d has no name", i+1))
			continue
		}
		if waves[w.Name] {
			problems = append(problems, fmt.Sprintf("wave %q is defined twice", w.Name))
		}
		waves[w.Name] = true
		if len(w.Agents) == 0 {
			problems = append(problems, fmt.Sprintf("wave %q has no agents", w.Name))
		}
		roles := make(map[agent.Role]bool, len(w.Agents))
		for _, r := range w.Agents {
			if roles[r] {
				problems = append(problems, fmt.Sprintf("wave %q lists %s twice", w.Name, r))
			}
			roles[r] = true
		}
	}

	names := make([]string, 0, len(c.BudgetFractions))
	for name := range c.BudgetFractions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !waves[name] {
			problems = append(problems, fmt.Sprintf("budget fraction for unknown wave %q", name))
		}
	}

	if c.Cache.Backend == CacheRedis && c.Cache.RedisAddr == "" {
		problems = append(problems, "redis cache needs redisAddr or "+EnvRedisAddr)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Orchestrator converts the project settings to controller configuration.
func (c *ProjectConfig) Orchestrator() orchestrator.Config {
	cfg := orchestrator.Config{
		Waves:               c.Waves,
		DefaultProvider:     c.DefaultProvider,
		TokenBudget:         c.TokenBudget,
		BudgetFractions:     c.BudgetFractions,
		MaxTokensPerCall:    c.MaxTokensPerCall,
		Temperature:         c.Temperature,
		CacheCapacity:       c.Cache.Capacity,
		DisableAdaptiveSkip: c.DisableAdaptiveSkip,
	}
	if len(cfg.Waves) == 0 {
		cfg.Waves = orchestrator.DefaultWaves()
	}
	if len(c.Roles) > 0 {
		cfg.RoleOverrides = make(map[agent.Role]orchestrator.RoleOverride, len(c.Roles))
		for role, rc := range c.Roles {
			cfg.RoleOverrides[agent.Role(role)] = orchestrator.RoleOverride{Provider: rc.Provider, Model: rc.Model}
		}
	}
	return cfg
}

// Backends returns the settings of every provider that has an API key.
func (c *ProjectConfig) Backends() map[string]llm.ProviderSettings {
	out := make(map[string]llm.ProviderSettings, len(c.Providers))
	for name, p := range c.Providers {
		if p.APIKey == "" {
			continue
		}
		out[name] = llm.ProviderSettings{APIKey: p.APIKey, BaseURL: p.BaseURL, Model: p.Model}
	}
	return out
}

// Stack returns the decorator settings shared by every provider.
func (c *ProjectConfig) Stack() llm.StackSettings {
	return llm.StackSettings{
		MaxRetries:        c.Retry.MaxRetries,
		InitialInterval:   c.Retry.InitialInterval,
		AttemptTimeout:    c.Retry.CallTimeout,
		RequestsPerSecond: c.RateLimit.RequestsPerSecond,
		Burst:             c.RateLimit.Burst,
	}
}

// Order returns the fallback order, starting with the default provider.
func (c *ProjectConfig) Order() []string {
	order := make([]string, 0, len(c.FallbackOrder)+1)
	seen := make(map[string]bool)
	for _, name := range append([]string{c.DefaultProvider}, c.FallbackOrder...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
	}
	return order
}
