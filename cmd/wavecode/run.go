package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dusk-indust/wavecode/internal/export"
	"github.com/dusk-indust/wavecode/internal/orchestrator"
	"github.com/dusk-indust/wavecode/internal/printer"
	"github.com/spf13/cobra"
)

type runFlags struct {
	Single    bool
	JSON      bool
	NoHistory bool
	Quiet     bool
	Verbose   bool
}

func newRunCmd(global *globalFlags) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Run a request through the agent waves",
		Long: `Run a request through ingest and the configured waves and print the final
answer. The prompt is read from standard input when no arguments are given.

Use --single to send the prompt to one model call without the waves.`,
		Example: `  wavecode run "add retries to the HTTP client in pkg/fetch"
  git diff | wavecode run --json > run.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			e, err := loadEnv(global)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl, cleanup, err := e.controller(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			if flags.Single {
				resp, err := ctrl.Ask(ctx, prompt)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				fmt.Fprintln(out, resp.Content)
				return nil
			}

			if !flags.Quiet && !flags.JSON {
				progress := printer.NewProgress(cmd.ErrOrStderr(), flags.Verbose)
				unsubscribe := ctrl.Subscribe(progress.Handle)
				defer unsubscribe()
			}

			res, err := ctrl.Run(ctx, prompt)
			if err != nil {
				var fatal *orchestrator.FatalError
				if errors.As(err, &fatal) && strings.HasPrefix(fatal.Phase, "cancel:") {
					return fmt.Errorf("run interrupted before %s", strings.TrimPrefix(fatal.Phase, "cancel:"))
				}
				return err
			}

			if err := saveRun(ctx, e, flags.NoHistory, prompt, res, cmd.ErrOrStderr()); err != nil {
				return err
			}

			if flags.JSON {
				return export.WriteJSON(out, export.ExportRun(prompt, res))
			}
			printResult(out, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.Single, "single", false, "send the prompt to a single model call")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print the run as JSON")
	cmd.Flags().BoolVar(&flags.NoHistory, "no-history", false, "do not record the run in the history database")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "hide progress output")
	cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "show every agent start")
	return cmd
}

// readPrompt joins args, or reads stdin when there are none.
func readPrompt(args []string, stdin io.Reader) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return "", errors.New("a prompt is required: pass it as arguments or on standard input")
	}
	return prompt, nil
}

// saveRun records res unless history is disabled. A history failure is a
// warning; the run itself succeeded.
func saveRun(ctx context.Context, e *env, disabled bool, prompt string, res *orchestrator.ChainResult, warn io.Writer) error {
	store, err := e.history(disabled)
	if err != nil {
		printer.Warning(warn, "history unavailable: %v", err)
		return nil
	}
	if store == nil {
		return nil
	}
	defer store.Close()
	if err := store.Save(ctx, prompt, res); err != nil {
		printer.Warning(warn, "could not save run %s: %v", res.RunID, err)
	}
	return nil
}

func printResult(w io.Writer, res *orchestrator.ChainResult) {
	fmt.Fprintln(w, res.FinalAnswer)
	fmt.Fprintln(w)
	if res.BudgetExhausted {
		printer.Warning(w, "token budget exhausted after %d tokens", res.TokensUsed)
	}
	printer.Success(w, "run %s: %s, %d tokens, %s", res.RunID, res.Intent.Type, res.TokensUsed, res.Duration.Round(time.Millisecond))
}
