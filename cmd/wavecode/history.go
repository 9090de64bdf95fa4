package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dusk-indust/wavecode/internal/history"
	"github.com/dusk-indust/wavecode/internal/printer"
	"github.com/spf13/cobra"
)

func newHistoryCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past runs",
	}
	cmd.AddCommand(newHistoryListCmd(global), newHistoryShowCmd(global))
	return cmd
}

func openHistory(global *globalFlags) (*history.Store, error) {
	e, err := loadEnv(global)
	if err != nil {
		return nil, err
	}
	store, err := e.history(false)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, printer.Error("Run history is disabled",
			"historyPath is empty in wavecode.yml.",
			"set historyPath: .wavecode/history.db")
	}
	return store, nil
}

func newHistoryListCmd(global *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openHistory(global)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tINTENT\tTOKENS\tINPUT")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Intent, r.TokensUsed, truncate(r.Input, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "maximum number of runs to list")
	return cmd
}

func newHistoryShowCmd(global *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(global)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, history.ErrNotFound) {
				return fmt.Errorf("no run with ID %q", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}

			printer.Heading(out, "Run "+rec.ID)
			fmt.Fprintf(out, "Created:  %s\n", rec.CreatedAt.Local().Format(time.DateTime))
			fmt.Fprintf(out, "Intent:   %s\n", rec.Intent)
			fmt.Fprintf(out, "Tokens:   %d\n", rec.TokensUsed)
			fmt.Fprintf(out, "Duration: %s\n", rec.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "Input:    %s\n", rec.Input)
			for _, a := range rec.AuditTrail {
				for _, c := range a.Conflicts {
					printer.Warning(out, "%s: %s", a.Wave, c)
				}
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, rec.FinalAnswer)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored record as JSON")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
