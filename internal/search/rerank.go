package search

import (
	"context"
	"errors"
	"sort"
)

// ErrNilContext is returned when a nil context is passed to Rerank.
var ErrNilContext = errors.New("context cannot be nil")

// Document is a candidate handed to a Reranker.
type Document struct {
	ID      string
	Content string
	Score   float64
}

// ScoredDocument is a reranked candidate.
type ScoredDocument struct {
	Document
	RerankerScore float64 // blended score in [0,1]
	OriginalRank  int
}

// Reranker reorders semantic hits.
type Reranker interface {
	// Rerank returns docs sorted by RerankerScore, descending, limited to
	// topK (all when topK <= 0).
	Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error)
	Close() error
}

// TermOverlapReranker blends each document's original score with the
// fraction of query keywords it contains.
type TermOverlapReranker struct {
	// OverlapWeight is the share of the blended score taken from term
	// overlap; the rest comes from the original score.
	OverlapWeight float64
}

var _ Reranker = (*TermOverlapReranker)(nil)

// NewTermOverlapReranker returns a reranker weighting both signals equally.
func NewTermOverlapReranker() *TermOverlapReranker {
	return &TermOverlapReranker{OverlapWeight: 0.5}
}

// Rerank implements Reranker.
func (r *TermOverlapReranker) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if topK <= 0 || topK > len(docs) {
		topK = len(docs)
	}
	if len(docs) == 0 {
		return []ScoredDocument{}, nil
	}

	keywords := Keywords(query)
	scored := make([]ScoredDocument, len(docs))
	for i, doc := range docs {
		blended := doc.Score
		if len(keywords) > 0 {
			overlap := termOverlap(keywords, Keywords(doc.Content))
			blended = (1-r.OverlapWeight)*doc.Score + r.OverlapWeight*overlap
		}
		scored[i] = ScoredDocument{Document: doc, RerankerScore: blended, OriginalRank: i}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RerankerScore > scored[j].RerankerScore
	})
	return scored[:topK], nil
}

// Close implements Reranker.
func (r *TermOverlapReranker) Close() error { return nil }

// termOverlap is the fraction of distinct query terms present in the
// document terms.
func termOverlap(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docSet := make(map[string]bool, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = true
	}
	var matched int
	for _, t := range queryTerms {
		if docSet[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
