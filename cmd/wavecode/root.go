package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dusk-indust/wavecode/internal/cache"
	"github.com/dusk-indust/wavecode/internal/config"
	"github.com/dusk-indust/wavecode/internal/history"
	"github.com/dusk-indust/wavecode/internal/llm"
	"github.com/dusk-indust/wavecode/internal/logging"
	"github.com/dusk-indust/wavecode/internal/orchestrator"
	"github.com/dusk-indust/wavecode/internal/printer"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every command.
type globalFlags struct {
	Dir       string
	LogLevel  string
	LogFormat string
}

// newBackend builds the model backend. Tests replace it with a fake.
var newBackend = func(cfg *config.ProjectConfig, logger *slog.Logger) (llm.Backend, error) {
	st := cfg.Stack()
	st.Logger = logger
	stack, err := llm.NewStack(cfg.Backends(), cfg.Order(), st)
	if err != nil {
		return nil, err
	}
	return stack, nil
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "wavecode",
		Short: "Multi-agent coding assistant that runs requests through waves of specialised agents",
		Long: `wavecode answers a coding request by running it through sequential waves of
concurrent agents (analysis, planning and validation, execution, review),
merging their structured outputs into one shared state and assembling a
final answer.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&flags.Dir, "dir", ".", "project directory containing wavecode.yml")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
	root.PersistentFlags().StringVar(&flags.LogFormat, "log-format", "", "log format: text or json (overrides config)")

	root.AddCommand(
		newRunCmd(&flags),
		newServeMCPCmd(&flags),
		newHistoryCmd(&flags),
		newWavesCmd(&flags),
		newVersionCmd(),
	)
	return root
}

// env is what commands need after loading configuration.
type env struct {
	cfg    *config.ProjectConfig
	logger *slog.Logger
}

func loadEnv(flags *globalFlags) (*env, error) {
	cfg, err := config.Load(flags.Dir)
	if err != nil {
		return nil, err
	}
	level, format := cfg.Log.Level, cfg.Log.Format
	if flags.LogLevel != "" {
		level = flags.LogLevel
	}
	if flags.LogFormat != "" {
		format = flags.LogFormat
	}
	logger, err := logging.New(logging.Config{Level: level, Format: format})
	if err != nil {
		return nil, err
	}
	if cfg.Source != "" {
		logger.Debug("config loaded", "path", cfg.Source)
	}
	return &env{cfg: cfg, logger: logger}, nil
}

// controller wires the backend stack, the result cache and the controller.
// The returned cleanup closes the Redis client when one was opened.
func (e *env) controller(ctx context.Context) (*orchestrator.Controller, func(), error) {
	backend, err := newBackend(e.cfg, e.logger)
	if errors.Is(err, llm.ErrNoProviders) {
		return nil, nil, printer.Error("No model providers configured",
			"wavecode needs an API key for at least one provider.",
			"export "+config.EnvOpenAIKey+"=...",
			"export "+config.EnvAnthropicKey+"=...")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("build backend: %w", err)
	}

	opts := []orchestrator.Option{orchestrator.WithLogger(e.logger)}
	cleanup := func() {}
	if e.cfg.Cache.Backend == config.CacheRedis {
		client := redis.NewClient(&redis.Options{Addr: e.cfg.Cache.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", e.cfg.Cache.RedisAddr, err)
		}
		opts = append(opts, orchestrator.WithCache(
			cache.NewRedis[orchestrator.CacheEntry](client, e.cfg.Cache.Prefix, e.cfg.Cache.Capacity)))
		cleanup = func() { _ = client.Close() }
	}

	return orchestrator.NewController(backend, e.cfg.Orchestrator(), opts...), cleanup, nil
}

// history opens the run history, or returns nil when it is disabled.
func (e *env) history(disabled bool) (*history.Store, error) {
	if disabled || e.cfg.HistoryPath == "" {
		return nil, nil
	}
	return history.Open(e.cfg.HistoryPath)
}
