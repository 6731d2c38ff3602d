package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpserver "github.com/fyrsmithlabs/ctxgraph/internal/http"
	"github.com/fyrsmithlabs/ctxgraph/internal/mcp"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools on stdio",
		Long: `Serve extract_context, search_context, find_related, get_evolution_chain
and inject_context to an MCP client over stdin/stdout.

Logs go to stderr. Nothing else is written to stdout while serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				srv, err := mcp.NewServer(&mcp.Config{
					Name:           "ctxgraph",
					Version:        version,
					RequestTimeout: a.cfg.Server.RequestTimeout.Duration(),
					Logger:         a.logger,
					Metrics:        mcp.NewMetricsWithMeter(a.telemetry.Meter("ctxgraph.mcp"), a.logger),
				}, a.services.Context())
				if err != nil {
					return fmt.Errorf("failed to create MCP server: %w", err)
				}
				return srv.Run(cmd.Context())
			})
		},
	}
}

func newHTTPCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the REST API",
		Long: `Serve the REST API, /health and Prometheus /metrics.

Examples:
  # Listen on the configured address (default 127.0.0.1:9191)
  ctxgraph http

  # Override the port
  ctxgraph http --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				if cmd.Flags().Changed("port") {
					a.cfg.Server.HTTPPort = port
				}
				return runHTTP(cmd.Context(), a)
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override the configured HTTP port")
	return cmd
}

// runHTTP serves until ctx is cancelled, then shuts down within the
// configured timeout.
func runHTTP(ctx context.Context, a *app) error {
	srv, err := httpserver.NewServer(a.services.Context(), a.logger, &httpserver.Config{
		Host:           a.cfg.Server.HTTPHost,
		Port:           a.cfg.Server.HTTPPort,
		RequestTimeout: a.cfg.Server.RequestTimeout.Duration(),
		BodyLimit:      a.cfg.Server.BodyLimit,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	a.logger.Info("Server configured",
		zap.String("addr", a.cfg.Server.Addr()),
		zap.String("health_endpoint", "/health"),
		zap.String("metrics_endpoint", "/metrics"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("Server shutdown complete")
	return nil
}
