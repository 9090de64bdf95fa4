// Package mcpserver exposes the wave orchestrator as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer creates an MCP server with the 3 chain tools registered:
// run_chain, get_run and list_runs.
func NewServer(svc *Service, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "wavecode",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_chain",
		Description: "Run a coding request through the multi-agent waves (analysis, planning, execution, review) and return the final answer with its audit summary.",
	}, svc.RunChain)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_run",
		Description: "Get a stored run by ID: its final answer, shared state and merge conflicts.",
	}, svc.GetRun)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List the most recent stored runs, newest first.",
	}, svc.ListRuns)

	return server
}

// ServeStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves server over the streamable HTTP transport at /mcp and
// the process metrics at /metrics.
func HTTPHandler(server *mcp.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ServeHTTP listens on addr until ctx is cancelled.
func ServeHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           HTTPHandler(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
