package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/graphstore"
)

// Engine runs hybrid queries against a store.
type Engine struct {
	store    graphstore.Store
	embedder Embedder
	reranker Reranker
	cfg      Config
	logger   *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithReranker installs a reranker for semantic results. It overrides
// Config.Rerank.
func WithReranker(r Reranker) Option {
	return func(e *Engine) { e.reranker = r }
}

// NewEngine creates an Engine. embedder may be nil, in which case every
// query takes the keyword path.
func NewEngine(store graphstore.Store, embedder Embedder, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{store: store, embedder: embedder, cfg: cfg, logger: logger}
	if cfg.Rerank {
		e.reranker = NewTermOverlapReranker()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// query is the state shared by the search paths.
type query struct {
	text     string
	keywords []string
	filter   graphstore.ItemFilter
	limit    int
}

// path is one retrieval strategy. Results from a fallible path that fails
// or returns nothing hand over to the next path.
type path struct {
	name     MatchType
	fallible bool
	run      func(ctx context.Context, q query) ([]Result, error)
}

// Search ranks stored items against text.
func (e *Engine) Search(ctx context.Context, text string, opts Options) ([]Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ctxitem.Invalidf("query cannot be empty")
	}
	for _, t := range opts.Types {
		if !t.Valid() {
			return nil, ctxitem.Invalidf("unknown item type %q", t)
		}
	}

	q := query{
		text:     text,
		keywords: Keywords(text),
		filter:   graphstore.ItemFilter{ProjectID: opts.ProjectID, Types: opts.Types},
		limit:    e.limit(opts.Limit),
	}

	var paths []path
	if opts.UseSemantic && e.embedder != nil {
		paths = append(paths, path{name: MatchSemantic, fallible: true, run: e.semantic})
	}
	paths = append(paths, path{name: MatchKeyword, run: e.keyword})

	for _, p := range paths {
		results, err := p.run(ctx, q)
		if err != nil {
			if p.fallible {
				e.logger.Warn("search path failed, falling back",
					zap.String("path", string(p.name)),
					zap.Error(err))
				continue
			}
			return nil, err
		}
		if len(results) == 0 && p.fallible {
			e.logger.Debug("search path found nothing, falling back", zap.String("path", string(p.name)))
			continue
		}
		e.decorate(ctx, results, q.keywords)
		return results, nil
	}
	return []Result{}, nil
}

func (e *Engine) limit(n int) int {
	if n <= 0 {
		return e.cfg.DefaultLimit
	}
	return min(n, e.cfg.MaxLimit)
}

func (e *Engine) semantic(ctx context.Context, q query) ([]Result, error) {
	vec, err := e.embedder.Embed(ctx, q.text)
	if err != nil {
		return nil, err
	}
	hits, err := e.store.VectorSearch(ctx, vec, q.limit, e.cfg.SimilarityFloor, q.filter)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if !q.filter.Match(h.Item) {
			continue
		}
		results = append(results, Result{Item: h.Item, Score: h.Similarity, MatchType: MatchSemantic})
	}
	if e.reranker != nil && len(results) > 1 {
		results = e.rerank(ctx, q.text, results)
	}
	return results, nil
}

func (e *Engine) rerank(ctx context.Context, text string, results []Result) []Result {
	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{ID: r.Item.ID, Content: r.Item.Content, Score: r.Score}
	}
	scored, err := e.reranker.Rerank(ctx, text, docs, len(docs))
	if err != nil {
		e.logger.Warn("rerank failed, keeping vector order", zap.Error(err))
		return results
	}
	out := make([]Result, len(scored))
	for i, sd := range scored {
		r := results[sd.OriginalRank]
		r.Score = ctxitem.Clamp01(sd.RerankerScore)
		out[i] = r
	}
	return out
}

func (e *Engine) keyword(ctx context.Context, q query) ([]Result, error) {
	if len(q.keywords) == 0 {
		return []Result{}, nil
	}
	items, err := e.store.KeywordCandidates(ctx, candidateTerms(q.keywords), q.filter)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", persistenceErr(err))
	}

	results := make([]Result, 0, len(items))
	for _, it := range items {
		if !q.filter.Match(it) {
			continue
		}
		if score := matchFraction(it.Content, q.keywords); score > 0 {
			results = append(results, Result{Item: it, Score: score, MatchType: MatchKeyword})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Item.ImportanceScore != b.Item.ImportanceScore {
			return a.Item.ImportanceScore > b.Item.ImportanceScore
		}
		if !a.Item.Timestamp.Equal(b.Item.Timestamp) {
			return a.Item.Timestamp.After(b.Item.Timestamp)
		}
		return a.Item.ID < b.Item.ID
	})
	if len(results) > q.limit {
		results = results[:q.limit]
	}
	return results, nil
}

// decorate fills chat titles and highlights.
func (e *Engine) decorate(ctx context.Context, results []Result, keywords []string) {
	titles := make(map[string]string)
	for i := range results {
		chatID := results[i].Item.ChatID
		title, ok := titles[chatID]
		if !ok {
			if chat, err := e.store.GetChat(ctx, chatID); err == nil {
				title = chat.Title
			}
			titles[chatID] = title
		}
		results[i].ChatTitle = title
		results[i].Highlights = Highlights(results[i].Item.Content, keywords, e.cfg.MaxHighlights)
	}
}

// persistenceErr marks store errors that carry no classification of their
// own as persistence failures.
func persistenceErr(err error) error {
	if errors.Is(err, ctxitem.ErrPersistenceUnavailable) || errors.Is(err, ctxitem.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %w", ctxitem.ErrPersistenceUnavailable, err)
}
