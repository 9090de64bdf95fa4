package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dusk-indust/wavecode/internal/export"
	"github.com/spf13/cobra"
)

func newWavesCmd(global *globalFlags) *cobra.Command {
	var (
		output string
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "waves",
		Short: "Draw the configured wave topology as a Mermaid diagram",
		Long: `Print the configured waves as a Mermaid flowchart. With --run, waves are
colored by what happened to them in that stored run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(global)
			if err != nil {
				return err
			}
			waves := e.cfg.Orchestrator().Waves

			var diagram string
			if runID == "" {
				diagram = export.GenerateMermaid(waves, nil)
			} else {
				store, err := e.history(false)
				if err != nil {
					return err
				}
				if store == nil {
					return errors.New("run history is disabled")
				}
				defer store.Close()
				rec, err := store.Get(cmd.Context(), runID)
				if err != nil {
					return err
				}
				diagram = export.GenerateMermaid(waves, rec.ChainResult())
			}

			if output == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), diagram)
				return err
			}
			return os.WriteFile(output, []byte(diagram), 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the diagram to a file instead of stdout")
	cmd.Flags().StringVar(&runID, "run", "", "color waves by the outcome of a stored run")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wavecode version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wavecode %s\n", version)
		},
	}
}
