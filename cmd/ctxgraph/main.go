// Ctxgraph extracts typed context from conversations into a knowledge graph
// and serves search, evolution and token-budgeted injection over it.
//
// Usage:
//
//	# Serve the MCP tools on stdio
//	ctxgraph serve
//
//	# Serve the REST API
//	ctxgraph http
//
//	# One-shot operations against the configured store
//	ctxgraph extract --project app --chat c1 "We decided to use PostgreSQL."
//	ctxgraph search "database choice"
//	ctxgraph inject --max-tokens 800 "storage layer"
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ctxgraph",
		Short: "Conversation context graph",
		Long: `ctxgraph extracts code, decisions, requirements, errors and discussion
from conversations, links them into a graph and serves search, evolution
chains and token-budgeted context injection.

Configuration is read from ~/.config/ctxgraph/config.yaml and CTXGRAPH_*
environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/ctxgraph/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCmd(opts),
		newHTTPCmd(opts),
		newExtractCmd(opts),
		newSearchCmd(opts),
		newRelatedCmd(opts),
		newChainCmd(opts),
		newInjectCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ctxgraph by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
