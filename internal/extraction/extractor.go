package extraction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/compression"
	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/tokens"
)

// Deps are the collaborators of an Extractor. Zero fields get defaults.
type Deps struct {
	Logger     *zap.Logger
	Estimator  tokens.Estimator
	Summarizer compression.Summarizer
	Tagger     TagExtractor
	Linker     Linker
	Metrics    *Metrics
	Clock      func() time.Time
	NewID      func() string
}

// Extractor runs the extraction pipeline over one transcript at a time.
// It holds no per-run state and is safe for concurrent use.
type Extractor struct {
	cfg         Config
	classifiers []Classifier
	scorer      *Scorer
	estimator   tokens.Estimator
	summarizer  compression.Summarizer
	tagger      TagExtractor
	linker      Linker
	metrics     *Metrics
	logger      *zap.Logger
	clock       func() time.Time
	newID       func() string
}

// NewExtractor builds an Extractor from cfg.
func NewExtractor(cfg Config, deps Deps) (*Extractor, error) {
	cfg.ApplyDefaults()

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Estimator == nil {
		deps.Estimator = tokens.Heuristic{}
	}
	if deps.Summarizer == nil {
		s, err := compression.New(compression.Config{
			Algorithm:    compression.Algorithm(cfg.SummaryAlgorithm),
			MaxLines:     cfg.SummaryLines,
			TargetTokens: cfg.SummaryTokenCeiling / 2,
		}, deps.Estimator)
		if err != nil {
			return nil, fmt.Errorf("creating summarizer: %w", err)
		}
		deps.Summarizer = s
	}
	if deps.Tagger == nil {
		deps.Tagger = NewKeywordTagger(cfg.TagRules)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	return &Extractor{
		cfg:         cfg,
		classifiers: DefaultClassifiers(cfg),
		scorer:      NewScorer(cfg.KeywordBoosts),
		estimator:   deps.Estimator,
		summarizer:  deps.Summarizer,
		tagger:      deps.Tagger,
		linker:      deps.Linker,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		clock:       deps.Clock,
		newID:       deps.NewID,
	}, nil
}

// Option adjusts a single Extract call.
type Option func(*runOptions)

type runOptions struct {
	timeline []TimeMark
}

// WithTimeline timestamps items by the latest mark at or before their offset.
// Items before the first mark get the extraction time.
func WithTimeline(marks []TimeMark) Option {
	return func(o *runOptions) {
		o.timeline = append([]TimeMark(nil), marks...)
		sort.SliceStable(o.timeline, func(i, j int) bool { return o.timeline[i].Offset < o.timeline[j].Offset })
	}
}

// Validate checks that text is extractable.
func (e *Extractor) Validate(text string) error {
	switch {
	case strings.TrimSpace(text) == "":
		return ctxitem.Invalidf("transcript is empty")
	case !utf8.ValidString(text):
		return ctxitem.Invalidf("transcript is not valid UTF-8")
	case strings.IndexByte(text, 0) >= 0:
		return ctxitem.Invalidf("transcript contains binary data")
	case len(text) > e.cfg.MaxTranscriptBytes:
		return ctxitem.Invalidf("transcript exceeds %d bytes", e.cfg.MaxTranscriptBytes)
	}
	return nil
}

// Extract classifies, scores, summarizes and links the items in text.
// A transcript with no matches yields an empty, successful result.
func (e *Extractor) Extract(ctx context.Context, text, chatID, projectID string, opts ...Option) (*Result, error) {
	start := time.Now()

	if err := e.Validate(text); err != nil {
		return nil, err
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, ctxitem.Invalidf("chat id is required")
	}

	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	doc := NewDocument(text)
	var candidates []Candidate
	for _, c := range e.classifiers {
		found := c.Classify(doc)
		e.logger.Debug("classifier finished",
			zap.String("classifier", c.Name()),
			zap.Int("candidates", len(found)))
		candidates = append(candidates, found...)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Offset < candidates[j].Offset })

	now := e.clock()
	items := make([]*ctxitem.Item, 0, len(candidates))
	summarized := 0
	for _, cand := range candidates {
		item := e.newItem(cand, chatID, projectID, timestampAt(ro.timeline, cand.Offset, now))
		e.scorer.Apply(item)
		if item.TokenCount > e.cfg.SummaryTokenCeiling {
			if summary, n, ok := e.summarizer.Summarize(item.Content); ok && item.SetSummary(summary, n) {
				summarized++
			}
		}
		items = append(items, item)
	}

	var rels []ctxitem.Relationship
	if e.linker != nil {
		rels = e.linker.Detect(items, text, chatID)
	} else {
		rels = membership(items, chatID)
	}

	res := &Result{
		Items:         items,
		Relationships: rels,
		TotalTokens:   sumTokens(items),
		Elapsed:       time.Since(start),
	}
	e.metrics.Record(ctx, items, rels, res.Elapsed)

	e.logger.Info("extraction complete",
		zap.String("chat_id", chatID),
		zap.String("project_id", projectID),
		zap.Int("items", len(items)),
		zap.Int("summarized", summarized),
		zap.Int("relationships", len(rels)),
		zap.Int("total_tokens", res.TotalTokens),
		zap.Duration("elapsed", res.Elapsed))

	return res, nil
}

func (e *Extractor) newItem(c Candidate, chatID, projectID string, ts time.Time) *ctxitem.Item {
	return &ctxitem.Item{
		ID:         e.newID(),
		ChatID:     chatID,
		ProjectID:  projectID,
		Content:    c.Content,
		Type:       c.Type,
		Timestamp:  ts,
		TokenCount: e.estimator.Count(c.Content),
		Metadata: ctxitem.Metadata{
			Language:  c.Language,
			LineCount: c.Lines,
			Offset:    c.Offset,
			Pattern:   c.Pattern,
			Tags:      e.tagger.ExtractTags(c.Content),
		},
	}
}

func timestampAt(timeline []TimeMark, offset int, fallback time.Time) time.Time {
	ts := fallback
	for _, m := range timeline {
		if m.Offset > offset {
			break
		}
		ts = m.Time
	}
	return ts
}

func membership(items []*ctxitem.Item, chatID string) []ctxitem.Relationship {
	rels := make([]ctxitem.Relationship, 0, len(items))
	for _, it := range items {
		rels = append(rels, ctxitem.Relationship{FromID: it.ID, ToID: chatID, Type: ctxitem.RelBelongsTo})
	}
	return rels
}

func sumTokens(items []*ctxitem.Item) int {
	total := 0
	for _, it := range items {
		total += it.TokenCount
	}
	return total
}

// Cap keeps the n highest-priority items (importance, then transcript
// order) and the relationships among them. Kept items stay in transcript
// order. n <= 0 or n >= len(Items) returns r unchanged.
func (r *Result) Cap(n int) *Result {
	if n <= 0 || n >= len(r.Items) {
		return r
	}

	ranked := append([]*ctxitem.Item(nil), r.Items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ImportanceScore != ranked[j].ImportanceScore {
			return ranked[i].ImportanceScore > ranked[j].ImportanceScore
		}
		return ranked[i].Metadata.Offset < ranked[j].Metadata.Offset
	})
	keep := make(map[string]struct{}, n)
	for _, it := range ranked[:n] {
		keep[it.ID] = struct{}{}
	}

	out := &Result{Elapsed: r.Elapsed}
	for _, it := range r.Items {
		if _, ok := keep[it.ID]; ok {
			out.Items = append(out.Items, it)
		}
	}
	for _, rel := range r.Relationships {
		if _, ok := keep[rel.FromID]; !ok {
			continue
		}
		if _, ok := keep[rel.ToID]; ok || rel.Type == ctxitem.RelBelongsTo {
			out.Relationships = append(out.Relationships, rel)
		}
	}
	out.TotalTokens = sumTokens(out.Items)
	return out
}
