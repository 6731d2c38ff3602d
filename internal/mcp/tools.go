package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/memory"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
)

// itemView is an item as returned to clients.
type itemView struct {
	ID              string   `json:"id" jsonschema:"Item ID"`
	ChatID          string   `json:"chat_id" jsonschema:"Owning chat"`
	ProjectID       string   `json:"project_id" jsonschema:"Owning project"`
	Type            string   `json:"type" jsonschema:"code, decision, requirement, discussion or error"`
	Content         string   `json:"content" jsonschema:"Item text"`
	Summary         string   `json:"summary,omitempty" jsonschema:"Condensed text when the item is summarized"`
	ImportanceScore float64  `json:"importance_score" jsonschema:"Importance in [0,1]"`
	TokenCount      int      `json:"token_count" jsonschema:"Estimated tokens of the content"`
	Timestamp       string   `json:"timestamp" jsonschema:"RFC3339 time the item was said"`
	Tags            []string `json:"tags,omitempty" jsonschema:"Keyword tags"`
}

func toItemView(it *ctxitem.Item) itemView {
	return itemView{
		ID:              it.ID,
		ChatID:          it.ChatID,
		ProjectID:       it.ProjectID,
		Type:            string(it.Type),
		Content:         it.Content,
		Summary:         it.Summary,
		ImportanceScore: it.ImportanceScore,
		TokenCount:      it.TokenCount,
		Timestamp:       it.Timestamp.UTC().Format(time.RFC3339),
		Tags:            it.Metadata.Tags,
	}
}

type resultView struct {
	Item       itemView `json:"item"`
	Score      float64  `json:"score" jsonschema:"Relevance score"`
	ChatTitle  string   `json:"chat_title,omitempty" jsonschema:"Title of the owning chat"`
	Highlights []string `json:"highlights,omitempty" jsonschema:"Sentences that match the query"`
	MatchType  string   `json:"match_type" jsonschema:"semantic, keyword or graph"`
}

func toResultViews(results []search.Result) []resultView {
	out := make([]resultView, 0, len(results))
	for _, r := range results {
		out = append(out, resultView{
			Item:       toItemView(r.Item),
			Score:      r.Score,
			ChatTitle:  r.ChatTitle,
			Highlights: r.Highlights,
			MatchType:  string(r.MatchType),
		})
	}
	return out
}

// ===== EXTRACTION =====

type extractInput struct {
	Text           string `json:"text,omitempty" jsonschema:"Conversation transcript to extract from"`
	TranscriptPath string `json:"transcript_path,omitempty" jsonschema:"Path to a JSONL session file, read instead of text"`
	ChatID         string `json:"chat_id,omitempty" jsonschema:"Chat identifier (defaults to the session id of a transcript file)"`
	ProjectID      string `json:"project_id" jsonschema:"Project identifier"`
	ChatTitle      string `json:"chat_title,omitempty" jsonschema:"Human readable chat title"`
	MaxItems       int    `json:"max_items,omitempty" jsonschema:"Keep only the highest priority items (0 keeps all)"`
}

type extractOutput struct {
	ChatID         string             `json:"chat_id" jsonschema:"Chat the items belong to"`
	ItemsExtracted int                `json:"items_extracted" jsonschema:"Number of stored items"`
	Items          []memory.ItemBrief `json:"items" jsonschema:"Stored items without content"`
	ByType         map[string]int     `json:"by_type" jsonschema:"Item count per type"`
	Relationships  map[string]int     `json:"relationships" jsonschema:"Edge count per relationship type"`
	TotalTokens    int                `json:"total_tokens" jsonschema:"Sum of item token counts"`
	Embedded       int                `json:"embedded" jsonschema:"Items stored with a vector"`
	Redactions     int                `json:"redactions" jsonschema:"Secrets removed before extraction"`
	ElapsedMs      int64              `json:"elapsed_ms" jsonschema:"Processing time in milliseconds"`
}

// ===== SEARCH =====

type searchInput struct {
	Query       string   `json:"query" jsonschema:"Search query"`
	Types       []string `json:"types,omitempty" jsonschema:"Restrict to these item types"`
	Limit       int      `json:"limit,omitempty" jsonschema:"Maximum results (default: 10)"`
	ProjectID   string   `json:"project_id,omitempty" jsonschema:"Restrict to one project"`
	UseSemantic *bool    `json:"use_semantic,omitempty" jsonschema:"Try vector search before keywords (default: true)"`
}

type searchOutput struct {
	Query   string       `json:"query" jsonschema:"Query used"`
	Results []resultView `json:"results" jsonschema:"Ranked results"`
	Count   int          `json:"count" jsonschema:"Number of results"`
}

type relatedInput struct {
	ItemID string `json:"item_id" jsonschema:"Item to start from"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum results (default: 10)"`
}

type relatedOutput struct {
	ItemID  string       `json:"item_id" jsonschema:"Starting item"`
	Results []resultView `json:"results" jsonschema:"Related items, best first"`
	Count   int          `json:"count" jsonschema:"Number of results"`
}

type chainInput struct {
	ItemID string `json:"item_id" jsonschema:"Any item of the chain"`
	Depth  int    `json:"depth,omitempty" jsonschema:"Maximum hops in each direction (default: 10)"`
}

type chainOutput struct {
	ItemID string     `json:"item_id" jsonschema:"Starting item"`
	Chain  []itemView `json:"chain" jsonschema:"Items oldest first"`
	Length int        `json:"length" jsonschema:"Number of items in the chain"`
}

// ===== INJECTION =====

type injectInput struct {
	Query     string `json:"query" jsonschema:"What the next prompt is about"`
	MaxTokens int    `json:"max_tokens" jsonschema:"Token budget for the injected context"`
	Format    string `json:"format,omitempty" jsonschema:"full, summary or reference (default: full)"`
	ProjectID string `json:"project_id,omitempty" jsonschema:"Restrict to one project"`
}

type injectEntry struct {
	ItemID string  `json:"item_id"`
	Type   string  `json:"type"`
	Format string  `json:"format" jsonschema:"Form the item was rendered in"`
	Score  float64 `json:"score"`
	Tokens int     `json:"tokens"`
}

type injectOutput struct {
	Formatted  string        `json:"formatted" jsonschema:"Context block ready to prepend to a prompt"`
	Entries    []injectEntry `json:"entries" jsonschema:"Selected items in order"`
	TokensUsed int           `json:"tokens_used" jsonschema:"Tokens consumed"`
	MaxTokens  int           `json:"max_tokens" jsonschema:"Budget requested"`
	Strategy   string        `json:"strategy" jsonschema:"complete, budget_exhausted, forced_summary, no_results or token_limit_reached"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "extract_context",
		Description: "Extract decisions, requirements, code, errors and discussion from a conversation and store them with their relationships",
	}, s.handleExtract)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_context",
		Description: "Search stored context by meaning, falling back to keywords",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_related",
		Description: "Find items related to an item through the context graph",
	}, s.handleRelated)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_evolution_chain",
		Description: "Show how an idea evolved across the conversation, oldest first",
	}, s.handleChain)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "inject_context",
		Description: "Select and render the most relevant stored context within a token budget",
	}, s.handleInject)
}

func (s *Server) handleExtract(ctx context.Context, _ *mcp.CallToolRequest, args extractInput) (*mcp.CallToolResult, extractOutput, error) {
	done := s.metrics.track(ctx, "extract_context")
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		resp *memory.ExtractResponse
		err  error
	)
	switch {
	case args.TranscriptPath != "" && args.Text != "":
		err = ctxitem.Invalidf("text and transcript_path are mutually exclusive")
	case args.TranscriptPath != "":
		resp, err = s.svc.ExtractConversationFile(ctx, memory.ConversationRequest{
			Path:      args.TranscriptPath,
			ChatID:    args.ChatID,
			ProjectID: args.ProjectID,
			MaxItems:  args.MaxItems,
		})
	default:
		resp, err = s.svc.ExtractContext(ctx, memory.ExtractRequest{
			Text:      args.Text,
			ChatID:    args.ChatID,
			ProjectID: args.ProjectID,
			ChatTitle: args.ChatTitle,
			MaxItems:  args.MaxItems,
		})
	}
	done(err)
	if err != nil {
		s.logger.Warn("extract_context failed", zap.Error(err))
		return nil, extractOutput{}, fmt.Errorf("extract failed: %w", err)
	}

	out := extractOutput{
		ChatID:         resp.ChatID,
		ItemsExtracted: len(resp.Items),
		Items:          resp.Items,
		ByType:         make(map[string]int, len(resp.ByType)),
		Relationships:  resp.Relationships,
		TotalTokens:    resp.TotalTokens,
		Embedded:       resp.Embedded,
		Redactions:     resp.Redactions,
		ElapsedMs:      resp.Elapsed.Milliseconds(),
	}
	if out.Items == nil {
		out.Items = []memory.ItemBrief{}
	}
	if out.Relationships == nil {
		out.Relationships = map[string]int{}
	}
	for t, n := range resp.ByType {
		out.ByType[string(t)] = n
	}

	return textResult(fmt.Sprintf("Extracted %d item(s) from chat %s (%d tokens)", out.ItemsExtracted, out.ChatID, out.TotalTokens)), out, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
	done := s.metrics.track(ctx, "search_context")
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	types, err := parseTypes(args.Types)
	var results []search.Result
	if err == nil {
		useSemantic := args.UseSemantic == nil || *args.UseSemantic
		results, err = s.svc.SearchContext(ctx, memory.SearchRequest{
			Query:       args.Query,
			Types:       types,
			Limit:       args.Limit,
			ProjectID:   args.ProjectID,
			UseSemantic: useSemantic,
		})
	}
	done(err)
	if err != nil {
		return nil, searchOutput{}, fmt.Errorf("search failed: %w", err)
	}

	out := searchOutput{Query: args.Query, Results: toResultViews(results), Count: len(results)}
	return textResult(fmt.Sprintf("Found %d result(s) for %q", out.Count, args.Query)), out, nil
}

func (s *Server) handleRelated(ctx context.Context, _ *mcp.CallToolRequest, args relatedInput) (*mcp.CallToolResult, relatedOutput, error) {
	done := s.metrics.track(ctx, "find_related")
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	results, err := s.svc.FindRelated(ctx, args.ItemID, args.Limit)
	done(err)
	if err != nil {
		return nil, relatedOutput{}, fmt.Errorf("find related failed: %w", err)
	}

	out := relatedOutput{ItemID: args.ItemID, Results: toResultViews(results), Count: len(results)}
	return textResult(fmt.Sprintf("Found %d related item(s)", out.Count)), out, nil
}

func (s *Server) handleChain(ctx context.Context, _ *mcp.CallToolRequest, args chainInput) (*mcp.CallToolResult, chainOutput, error) {
	done := s.metrics.track(ctx, "get_evolution_chain")
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chain, err := s.svc.GetEvolutionChain(ctx, args.ItemID, args.Depth)
	done(err)
	if err != nil {
		return nil, chainOutput{}, fmt.Errorf("evolution chain failed: %w", err)
	}

	out := chainOutput{ItemID: args.ItemID, Chain: make([]itemView, 0, len(chain)), Length: len(chain)}
	for _, it := range chain {
		out.Chain = append(out.Chain, toItemView(it))
	}
	return textResult(fmt.Sprintf("Evolution chain has %d item(s)", out.Length)), out, nil
}

func (s *Server) handleInject(ctx context.Context, _ *mcp.CallToolRequest, args injectInput) (*mcp.CallToolResult, injectOutput, error) {
	done := s.metrics.track(ctx, "inject_context")
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.svc.InjectContext(ctx, memory.InjectRequest{
		Query:     args.Query,
		MaxTokens: args.MaxTokens,
		Format:    args.Format,
		ProjectID: args.ProjectID,
	})
	done(err)
	if err != nil {
		return nil, injectOutput{}, fmt.Errorf("inject failed: %w", err)
	}

	out := injectOutput{
		Formatted:  resp.Formatted,
		Entries:    []injectEntry{},
		TokensUsed: resp.TokensUsed,
		MaxTokens:  resp.MaxTokens,
		Strategy:   string(resp.Strategy),
	}
	if resp.Selection != nil {
		for _, e := range resp.Selection.Entries {
			out.Entries = append(out.Entries, injectEntry{
				ItemID: e.Item.ID,
				Type:   string(e.Item.Type),
				Format: string(e.Format),
				Score:  e.Score,
				Tokens: e.Tokens,
			})
		}
	}

	text := resp.Formatted
	if strings.TrimSpace(text) == "" {
		text = fmt.Sprintf("No context selected (%s)", out.Strategy)
	}
	return textResult(text), out, nil
}

func parseTypes(names []string) ([]ctxitem.ItemType, error) {
	if len(names) == 0 {
		return nil, nil
	}
	types := make([]ctxitem.ItemType, 0, len(names))
	for _, n := range names {
		t, err := ctxitem.ParseItemType(strings.ToLower(strings.TrimSpace(n)))
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
