package injection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/compression"
	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
	"github.com/fyrsmithlabs/ctxgraph/internal/tokens"
)

// Searcher retrieves candidates.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// Injector prepares budgeted selections.
type Injector struct {
	searcher  Searcher
	estimator tokens.Estimator
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

// Option customizes an Injector.
type Option func(*Injector)

// WithClock sets the time source used for recency.
func WithClock(now func() time.Time) Option {
	return func(in *Injector) { in.now = now }
}

// NewInjector creates an Injector.
func NewInjector(searcher Searcher, est tokens.Estimator, cfg Config, logger *zap.Logger, opts ...Option) *Injector {
	cfg.ApplyDefaults()
	if est == nil {
		est = tokens.Heuristic{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	in := &Injector{searcher: searcher, estimator: est, cfg: cfg, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

type candidate struct {
	item     *ctxitem.Item
	score    float64
	critical bool
}

// Prepare selects items relevant to query whose rendered text fits within
// maxTokens. The selection never exceeds maxTokens.
func (in *Injector) Prepare(ctx context.Context, query string, maxTokens int, format Format, projectID string) (*Selection, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ctxitem.Invalidf("query cannot be empty")
	}
	if maxTokens <= 0 {
		return nil, ctxitem.Invalidf("max tokens must be positive, got %d", maxTokens)
	}
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}

	results, err := in.searcher.Search(ctx, query, search.Options{
		Limit:       in.cfg.CandidateLimit,
		ProjectID:   projectID,
		UseSemantic: true,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving candidates: %w", err)
	}

	sel := &Selection{Query: query, MaxTokens: maxTokens, Entries: []Entry{}, Candidates: len(results)}
	if len(results) == 0 {
		sel.Strategy = StrategyNoResults
		return sel, nil
	}

	cands := in.rank(results)
	skipped := in.fill(sel, cands, format)

	switch {
	case len(sel.Entries) == 0:
		in.force(sel, cands[0])
	case skipped == 0:
		sel.Strategy = StrategyComplete
	default:
		sel.Strategy = StrategyBudgetExhausted
	}

	in.logger.Debug("injection prepared",
		zap.String("strategy", string(sel.Strategy)),
		zap.Int("candidates", len(cands)),
		zap.Int("entries", len(sel.Entries)),
		zap.Int("tokens_used", sel.TokensUsed),
		zap.Int("max_tokens", maxTokens))
	return sel, nil
}

// rank scores candidates and orders them critical tier first, each tier by
// descending score. Ties keep search order.
func (in *Injector) rank(results []search.Result) []candidate {
	now := in.now()
	cands := make([]candidate, len(results))
	for i, r := range results {
		score := in.composite(r, now)
		cands[i] = candidate{item: r.Item, score: score, critical: score >= in.cfg.CriticalThreshold}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].critical != cands[j].critical {
			return cands[i].critical
		}
		return cands[i].score > cands[j].score
	})
	return cands
}

func (in *Injector) composite(r search.Result, now time.Time) float64 {
	ageDays := now.Sub(r.Item.Timestamp).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	recency := math.Exp(-ageDays / in.cfg.RecencyDays)
	mult, ok := in.cfg.TypeMultipliers[r.Item.Type]
	if !ok {
		mult = 1
	}
	return r.Score*in.cfg.RelevanceWeight +
		recency*in.cfg.RecencyWeight +
		r.Item.ImportanceScore*in.cfg.ImportanceWeight*mult
}

// fill walks the candidates against the budget and returns how many were
// left out.
func (in *Injector) fill(sel *Selection, cands []candidate, preferred Format) int {
	regularStop := int(math.Floor(float64(sel.MaxTokens) * in.cfg.RegularBudgetShare))
	skipped := 0
	for _, c := range cands {
		remaining := sel.MaxTokens - sel.TokensUsed
		if !c.critical && sel.TokensUsed > 0 && sel.TokensUsed >= regularStop {
			skipped++
			continue
		}
		entry, ok := in.fit(c, preferred, remaining)
		if !ok {
			skipped++
			continue
		}
		sel.Entries = append(sel.Entries, entry)
		sel.TokensUsed += entry.Tokens
	}
	return skipped
}

// fit tries the format ladder and returns the first rendering within budget.
func (in *Injector) fit(c candidate, preferred Format, budget int) (Entry, bool) {
	for _, f := range ladder(preferred) {
		text, ok := in.render(c.item, f)
		if !ok {
			continue
		}
		if n := in.estimator.Count(text); n <= budget {
			return Entry{Item: c.item, Score: c.score, Format: f, Text: text, Tokens: n}, true
		}
	}
	return Entry{}, false
}

// render returns the text injected for item in format f. Items without a
// stored summary have no summary rendering.
func (in *Injector) render(item *ctxitem.Item, f Format) (string, bool) {
	switch f {
	case FormatFull:
		return item.Content, true
	case FormatSummary:
		if !item.IsSummarized {
			return "", false
		}
		return item.Summary, true
	default:
		return Reference(item, in.cfg.ReferenceChars), true
	}
}

// force synthesizes a summary of the top candidate sized to the budget.
func (in *Injector) force(sel *Selection, top candidate) {
	summarizer := compression.NewExtractiveSummarizer(sel.MaxTokens, in.estimator)
	text, n, ok := summarizer.Summarize(top.item.Content)
	if top.item.IsSummarized && (!ok || in.estimator.Count(top.item.Summary) < n) {
		text, n, ok = top.item.Summary, in.estimator.Count(top.item.Summary), true
	}
	if !ok || n > sel.MaxTokens {
		sel.Strategy = StrategyTokenLimitReached
		return
	}
	sel.Entries = append(sel.Entries, Entry{Item: top.item, Score: top.score, Format: FormatSummary, Text: text, Tokens: n})
	sel.TokensUsed = n
	sel.Strategy = StrategyForcedSummary
}

// Reference renders a one-line pointer to item.
func Reference(item *ctxitem.Item, maxChars int) string {
	line := strings.TrimSpace(item.Content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if r := []rune(line); len(r) > maxChars {
		line = string(r[:maxChars]) + "..."
	}
	return fmt.Sprintf("[%s %s] %s", item.Type, item.ID, line)
}
