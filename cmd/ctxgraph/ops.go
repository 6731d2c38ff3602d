package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/memory"
)

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var (
		req        memory.ExtractRequest
		transcript string
	)

	cmd := &cobra.Command{
		Use:   "extract [text|-]",
		Short: "Extract context items from text or a transcript",
		Long: `Extract typed context items from conversation text and store them with
their relationships.

Examples:
  # Extract from an argument
  ctxgraph extract --chat c1 --project app "We decided to use PostgreSQL."

  # Extract from stdin
  cat notes.md | ctxgraph extract --chat c1 -

  # Extract a JSONL conversation transcript
  ctxgraph extract --transcript ~/.claude/projects/app/session.jsonl`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if transcript != "" && len(args) > 0 {
				return fmt.Errorf("text and --transcript are mutually exclusive")
			}
			if transcript == "" {
				text, err := readInput(cmd, args)
				if err != nil {
					return err
				}
				req.Text = text
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				var (
					resp *memory.ExtractResponse
					err  error
				)
				if transcript != "" {
					resp, err = a.services.Context().ExtractConversationFile(cmd.Context(), memory.ConversationRequest{
						Path:      transcript,
						ChatID:    req.ChatID,
						ProjectID: req.ProjectID,
						MaxItems:  req.MaxItems,
					})
				} else {
					resp, err = a.services.Context().ExtractContext(cmd.Context(), req)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&req.ChatID, "chat", "", "chat id the items belong to")
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&req.ChatTitle, "title", "", "chat title")
	cmd.Flags().IntVar(&req.MaxItems, "max-items", 0, "keep only the highest-priority items")
	cmd.Flags().StringVar(&transcript, "transcript", "", "JSONL conversation transcript to extract")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		req      memory.SearchRequest
		types    []string
		keywords bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored context",
		Long: `Search stored context semantically, falling back to keyword matching.

Examples:
  ctxgraph search "database choice"
  ctxgraph search --type decision --type requirement --limit 5 "auth"
  ctxgraph search --keyword "connection refused"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			req.UseSemantic = !keywords
			for _, name := range types {
				t, err := ctxitem.ParseItemType(strings.ToLower(name))
				if err != nil {
					return err
				}
				req.Types = append(req.Types, t)
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				results, err := a.services.Context().SearchContext(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "restrict to item types (code, decision, requirement, discussion, error)")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum results")
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "restrict to a project")
	cmd.Flags().BoolVar(&keywords, "keyword", false, "skip semantic search")
	return cmd
}

func newRelatedCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "related <item-id>",
		Short: "List items linked to an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				results, err := a.services.Context().FindRelated(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results")
	return cmd
}

func newChainCmd(opts *rootOptions) *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "chain <item-id>",
		Short: "Show how an item evolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				chain, err := a.services.Context().GetEvolutionChain(cmd.Context(), args[0], depth)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), chain)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum hops in each direction")
	return cmd
}

func newInjectCmd(opts *rootOptions) *cobra.Command {
	var (
		req    memory.InjectRequest
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "inject <query>",
		Short: "Render the most relevant context within a token budget",
		Long: `Select stored context for a query so that it fits a token budget and
print it as markdown, ready to paste into a prompt.

Examples:
  ctxgraph inject --max-tokens 800 "storage layer"
  ctxgraph inject --format summary --json "auth flow"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			return withApp(cmd.Context(), opts, func(a *app) error {
				resp, err := a.services.Context().InjectContext(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Formatted)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&req.MaxTokens, "max-tokens", 2000, "token budget")
	cmd.Flags().StringVar(&req.Format, "format", "", "preferred format: full, summary or reference")
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "restrict to a project")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the selection as JSON")
	return cmd
}

// readInput returns the text argument, or stdin for "-" or no argument.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("no input: pass text, - with piped stdin, or --transcript")
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
