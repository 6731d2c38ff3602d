package search

import (
	"context"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// MatchType records which path produced a result.
type MatchType string

const (
	MatchSemantic MatchType = "semantic"
	MatchKeyword  MatchType = "keyword"
	MatchGraph    MatchType = "graph"
)

// Options narrows a search.
type Options struct {
	Types       []ctxitem.ItemType
	Limit       int
	ProjectID   string
	UseSemantic bool
}

// Result is one ranked search hit.
type Result struct {
	Item       *ctxitem.Item `json:"item"`
	Score      float64       `json:"score"`
	ChatTitle  string        `json:"chat_title,omitempty"`
	Highlights []string      `json:"highlights,omitempty"`
	MatchType  MatchType     `json:"match_type"`
}

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes the engine.
type Config struct {
	// SimilarityFloor is the minimum cosine similarity of a semantic hit.
	SimilarityFloor float64 `koanf:"similarity_floor"`

	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`

	// MaxHighlights caps the highlight sentences per result.
	MaxHighlights int `koanf:"max_highlights"`

	// ChainDepth is the default evolution chain depth.
	ChainDepth int `koanf:"chain_depth"`

	// Rerank blends semantic scores with query term overlap.
	Rerank bool `koanf:"rerank"`
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		SimilarityFloor: 0.7,
		DefaultLimit:    10,
		MaxLimit:        100,
		MaxHighlights:   3,
		ChainDepth:      10,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.SimilarityFloor <= 0 {
		c.SimilarityFloor = d.SimilarityFloor
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = d.DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = d.MaxLimit
	}
	if c.MaxHighlights <= 0 {
		c.MaxHighlights = d.MaxHighlights
	}
	if c.ChainDepth <= 0 {
		c.ChainDepth = d.ChainDepth
	}
}

// relationWeights scores graph neighbours; RELATED_TO uses its similarity.
var relationWeights = map[ctxitem.RelationType]float64{
	ctxitem.RelEvolvesTo:  0.9,
	ctxitem.RelReferences: 0.8,
}

const defaultRelationWeight = 0.7
