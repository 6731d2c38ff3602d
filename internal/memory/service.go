package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/conversation"
	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/extraction"
	"github.com/fyrsmithlabs/ctxgraph/internal/graphstore"
	"github.com/fyrsmithlabs/ctxgraph/internal/injection"
	"github.com/fyrsmithlabs/ctxgraph/internal/sanitize"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
	"github.com/fyrsmithlabs/ctxgraph/internal/secrets"
)

const previewRunes = 80

// Options wires a Service. Store, Extractor, Retriever and Injector are
// required; a nil Embedder stores items without vectors and a nil Scrubber
// disables redaction.
type Options struct {
	Store     graphstore.Store
	Extractor *extraction.Extractor
	Embedder  ItemEmbedder
	Retriever Retriever
	Injector  Preparer
	Scrubber  *secrets.Scrubber
	Parser    *conversation.Parser
	Logger    *zap.Logger
	Clock     func() time.Time

	// TranscriptRoot, when set, confines ExtractConversationFile to files
	// under it.
	TranscriptRoot string
}

// Service exposes the context operations.
type Service struct {
	store     graphstore.Store
	extractor *extraction.Extractor
	embedder  ItemEmbedder
	retriever Retriever
	injector  Preparer
	scrubber  *secrets.Scrubber
	parser    *conversation.Parser
	logger    *zap.Logger
	clock     func() time.Time
	root      string
}

// NewService validates opts and returns a Service.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("memory: store is required")
	case opts.Extractor == nil:
		return nil, errors.New("memory: extractor is required")
	case opts.Retriever == nil:
		return nil, errors.New("memory: retriever is required")
	case opts.Injector == nil:
		return nil, errors.New("memory: injector is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Parser == nil {
		opts.Parser = conversation.NewParser()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		store:     opts.Store,
		extractor: opts.Extractor,
		embedder:  opts.Embedder,
		retriever: opts.Retriever,
		injector:  opts.Injector,
		scrubber:  opts.Scrubber,
		parser:    opts.Parser,
		logger:    opts.Logger,
		clock:     opts.Clock,
		root:      opts.TranscriptRoot,
	}, nil
}

// ExtractContext scrubs, extracts, embeds and stores the items of one
// transcript. A transcript with nothing to extract still records the chat.
func (s *Service) ExtractContext(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	if err := s.extractor.Validate(req.Text); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ChatID) == "" {
		return nil, ctxitem.Invalidf("chat id is required")
	}
	if err := validateIDs(req.ChatID, req.ProjectID); err != nil {
		return nil, err
	}
	if req.MaxItems < 0 {
		return nil, ctxitem.Invalidf("max items must not be negative")
	}

	scrubbed := s.scrubber.Scrub(req.Text)
	marks := make([]extraction.TimeMark, len(req.Timeline))
	for i, m := range req.Timeline {
		marks[i] = extraction.TimeMark{Offset: scrubbed.Offset(m.Offset), Time: m.Time}
	}

	res, err := s.extractor.Extract(ctx, scrubbed.Text, req.ChatID, req.ProjectID, extraction.WithTimeline(marks))
	if err != nil {
		return nil, err
	}
	res = res.Cap(req.MaxItems)

	embedded := s.embed(ctx, res.Items)

	chat := ctxitem.Chat{
		ID:        req.ChatID,
		ProjectID: req.ProjectID,
		Title:     req.ChatTitle,
		CreatedAt: s.clock().UTC(),
	}
	for i, m := range marks {
		if i == 0 || m.Time.Before(chat.CreatedAt) {
			chat.CreatedAt = m.Time
		}
	}
	if err := s.store.UpsertChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("storing chat: %w", err)
	}
	if err := s.store.UpsertItems(ctx, res.Items); err != nil {
		return nil, fmt.Errorf("storing items: %w", err)
	}
	if err := s.store.UpsertRelationships(ctx, res.Relationships); err != nil {
		return nil, fmt.Errorf("storing relationships: %w", err)
	}

	resp := &ExtractResponse{
		ChatID:        req.ChatID,
		Items:         make([]ItemBrief, 0, len(res.Items)),
		ByType:        make(map[ctxitem.ItemType]int),
		Relationships: make(map[string]int),
		TotalTokens:   res.TotalTokens,
		Embedded:      embedded,
		Redactions:    len(scrubbed.Findings),
		Elapsed:       res.Elapsed,
	}
	for _, it := range res.Items {
		resp.ByType[it.Type]++
		resp.Items = append(resp.Items, brief(it))
	}
	for _, r := range res.Relationships {
		resp.Relationships[string(r.Type)]++
	}

	s.logger.Info("context extracted",
		zap.String("chat_id", req.ChatID),
		zap.String("project_id", req.ProjectID),
		zap.Int("items", len(res.Items)),
		zap.Int("relationships", len(res.Relationships)),
		zap.Int("embedded", embedded),
		zap.Int("redactions", resp.Redactions))
	return resp, nil
}

// embed attaches vectors to items and returns how many got one. Items the
// provider could not embed are marked pending for ReembedPending.
func (s *Service) embed(ctx context.Context, items []*ctxitem.Item) int {
	if s.embedder == nil || len(items) == 0 {
		return 0
	}
	vecs, err := s.embedder.EmbedForItems(ctx, items)
	if err != nil {
		s.logger.Warn("embedding extracted items failed, storing without vectors",
			zap.Int("items", len(items)),
			zap.Int("embedded", len(vecs)),
			zap.Error(err))
	}
	n := 0
	for _, it := range items {
		v, ok := vecs[it.ID]
		if !ok || len(v) == 0 {
			if it.Metadata.Extra == nil {
				it.Metadata.Extra = make(map[string]string, 1)
			}
			it.Metadata.Extra[EmbeddingStateKey] = EmbeddingPending
			continue
		}
		it.Embedding = v
		delete(it.Metadata.Extra, EmbeddingStateKey)
		n++
	}
	return n
}

// ReembedPending retries the items of a project (all projects when empty)
// whose embedding failed at extraction time. It returns how many were
// embedded; items that fail again stay pending.
func (s *Service) ReembedPending(ctx context.Context, projectID string) (int, error) {
	if s.embedder == nil {
		return 0, fmt.Errorf("%w: no embedding provider configured", ctxitem.ErrEmbeddingUnavailable)
	}
	all, err := s.store.ListItems(ctx, graphstore.ItemFilter{ProjectID: projectID})
	if err != nil {
		return 0, fmt.Errorf("listing items: %w", err)
	}
	var pending []*ctxitem.Item
	for _, it := range all {
		if it.Metadata.Extra[EmbeddingStateKey] == EmbeddingPending {
			pending = append(pending, it)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	n := s.embed(ctx, pending)
	if n == 0 {
		return 0, fmt.Errorf("%w: %d items still pending", ctxitem.ErrEmbeddingUnavailable, len(pending))
	}
	if err := s.store.UpsertItems(ctx, pending); err != nil {
		return 0, fmt.Errorf("storing items: %w", err)
	}
	s.logger.Info("re-embedded pending items",
		zap.String("project_id", projectID),
		zap.Int("embedded", n),
		zap.Int("pending", len(pending)-n))
	return n, nil
}

// ExtractConversationFile parses a JSONL session and extracts it with
// per-message timestamps.
func (s *Service) ExtractConversationFile(ctx context.Context, req ConversationRequest) (*ExtractResponse, error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, ctxitem.Invalidf("path is required")
	}
	path, err := sanitize.ValidatePath(req.Path, s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ctxitem.ErrInvalidInput, err)
	}
	tr, err := s.parser.ParseFile(path)
	if err != nil {
		return nil, ctxitem.Invalidf("%v", err)
	}
	if tr.Skipped > 0 {
		s.logger.Warn("skipped malformed transcript lines",
			zap.String("path", req.Path),
			zap.Int("skipped", tr.Skipped))
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = tr.SessionID
	}
	return s.ExtractContext(ctx, ExtractRequest{
		Text:      tr.Text,
		ChatID:    chatID,
		ProjectID: req.ProjectID,
		ChatTitle: tr.Title,
		MaxItems:  req.MaxItems,
		Timeline:  tr.Marks,
	})
}

// SearchContext runs a hybrid search.
func (s *Service) SearchContext(ctx context.Context, req SearchRequest) ([]search.Result, error) {
	results, err := s.retriever.Search(ctx, req.Query, search.Options{
		Types:       req.Types,
		Limit:       req.Limit,
		ProjectID:   req.ProjectID,
		UseSemantic: req.UseSemantic,
	})
	if err != nil {
		return nil, err
	}
	return stripResults(results), nil
}

// FindRelated returns graph neighbors of id, or its nearest items when it
// has none. An unknown id yields an empty result.
func (s *Service) FindRelated(ctx context.Context, id string, limit int) ([]search.Result, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ctxitem.Invalidf("item id is required")
	}
	results, err := s.retriever.FindRelated(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	return stripResults(results), nil
}

// GetEvolutionChain returns the items linked to id by EVOLVES_TO edges in
// time order.
func (s *Service) GetEvolutionChain(ctx context.Context, id string, depth int) ([]*ctxitem.Item, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ctxitem.Invalidf("item id is required")
	}
	chain, err := s.retriever.EvolutionChain(ctx, id, depth)
	if err != nil {
		return nil, err
	}
	for _, it := range chain {
		it.Embedding = nil
	}
	return chain, nil
}

// InjectContext selects stored context for query within MaxTokens and
// renders it.
func (s *Service) InjectContext(ctx context.Context, req InjectRequest) (*InjectResponse, error) {
	format, err := injection.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	sel, err := s.injector.Prepare(ctx, req.Query, req.MaxTokens, format, req.ProjectID)
	if err != nil {
		return nil, err
	}
	for i := range sel.Entries {
		sel.Entries[i].Item.Embedding = nil
	}
	return &InjectResponse{
		Formatted:  injection.Render(sel),
		Selection:  sel,
		TokensUsed: sel.TokensUsed,
		MaxTokens:  sel.MaxTokens,
		Strategy:   sel.Strategy,
	}, nil
}

// CreateRelationship stores a manual edge. Both endpoints must exist.
func (s *Service) CreateRelationship(ctx context.Context, rel ctxitem.Relationship) error {
	if !rel.Type.Valid() {
		return ctxitem.Invalidf("unknown relationship type %q", rel.Type)
	}
	if rel.Properties.Reason == "" {
		rel.Properties.Reason = "manual"
	}
	if err := s.store.UpsertRelationships(ctx, []ctxitem.Relationship{rel}); err != nil {
		return err
	}
	s.logger.Info("relationship created",
		zap.String("from", rel.FromID),
		zap.String("to", rel.ToID),
		zap.String("type", string(rel.Type)))
	return nil
}

// DeleteRelationship removes an edge. A missing edge is ErrNotFound.
func (s *Service) DeleteRelationship(ctx context.Context, key ctxitem.EdgeKey) error {
	if key.From == "" || key.To == "" || !key.Type.Valid() {
		return ctxitem.Invalidf("relationship key requires from, to and a known type")
	}
	return s.store.DeleteRelationship(ctx, key)
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}

func validateIDs(chatID, projectID string) error {
	if err := sanitize.ValidateID("chat id", chatID); err != nil {
		return fmt.Errorf("%w: %w", ctxitem.ErrInvalidInput, err)
	}
	if err := sanitize.ValidateOptionalID("project id", projectID); err != nil {
		return fmt.Errorf("%w: %w", ctxitem.ErrInvalidInput, err)
	}
	return nil
}

func stripResults(results []search.Result) []search.Result {
	for i := range results {
		if results[i].Item != nil {
			results[i].Item.Embedding = nil
		}
	}
	return results
}

func brief(it *ctxitem.Item) ItemBrief {
	return ItemBrief{
		ID:              it.ID,
		Type:            it.Type,
		ImportanceScore: it.ImportanceScore,
		TokenCount:      it.TokenCount,
		IsSummarized:    it.IsSummarized,
		Preview:         preview(it.Content),
	}
}

func preview(content string) string {
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	r := []rune(line)
	if len(r) > previewRunes {
		return string(r[:previewRunes]) + "..."
	}
	return line
}
