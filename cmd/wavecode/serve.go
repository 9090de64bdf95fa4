package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-indust/wavecode/internal/mcpserver"
	"github.com/spf13/cobra"
)

func newServeMCPCmd(global *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the run_chain, get_run and list_runs tools over MCP",
		Long: `Start an MCP server exposing the wave pipeline as tools. The server speaks
stdio by default; with --http it listens for streamable HTTP on /mcp and
serves Prometheus metrics on /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			var store mcpserver.RunStore
			hist, err := e.history(false)
			if err != nil {
				e.logger.Warn("run history disabled", "error", err)
			} else if hist != nil {
				defer hist.Close()
				store = hist
			}

			server := mcpserver.NewServer(mcpserver.NewService(ctrl, store, e.logger), version)
			if addr != "" {
				e.logger.Info("serving MCP over HTTP", "addr", addr)
				return mcpserver.ServeHTTP(ctx, server, addr)
			}
			return mcpserver.ServeStdio(ctx, server)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "listen address for streamable HTTP, e.g. :8080 (default stdio)")
	return cmd
}
