package graphstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// ErrVectorUnavailable is returned by VectorSearch when no vector index can
// serve the query.
var ErrVectorUnavailable = errors.New("vector search unavailable")

// Store is the persistence contract the core depends on.
type Store interface {
	// UpsertChat creates a chat or merges into it. An empty title keeps the
	// stored one and the earliest creation time wins.
	UpsertChat(ctx context.Context, chat ctxitem.Chat) error

	// UpsertItems creates or merges items by id. Importance never decreases
	// across upserts and an existing embedding survives an upsert without one.
	UpsertItems(ctx context.Context, items []*ctxitem.Item) error

	// UpsertRelationships creates or replaces edges by (from, to, type). It
	// fails with ctxitem.ErrNotFound when an endpoint does not exist.
	UpsertRelationships(ctx context.Context, rels []ctxitem.Relationship) error

	// DeleteRelationship removes one edge, or returns ctxitem.ErrNotFound.
	DeleteRelationship(ctx context.Context, key ctxitem.EdgeKey) error

	// GetItem returns one item, or ctxitem.ErrNotFound.
	GetItem(ctx context.Context, id string) (*ctxitem.Item, error)

	// GetChat returns one chat, or ctxitem.ErrNotFound.
	GetChat(ctx context.Context, id string) (*ctxitem.Chat, error)

	// ListItems returns items matching filter, oldest first.
	ListItems(ctx context.Context, filter ItemFilter) ([]*ctxitem.Item, error)

	// KeywordCandidates returns items whose content contains any of the
	// lowercase keywords, oldest first.
	KeywordCandidates(ctx context.Context, keywords []string, filter ItemFilter) ([]*ctxitem.Item, error)

	// VectorSearch returns up to k items whose embedding has cosine
	// similarity >= minSimilarity with vec, most similar first.
	VectorSearch(ctx context.Context, vec []float32, k int, minSimilarity float64, filter ItemFilter) ([]VectorHit, error)

	// Neighbors returns the items adjacent to id in either direction,
	// restricted to the given edge types when any are passed. Chat
	// endpoints are not returned.
	Neighbors(ctx context.Context, id string, types ...ctxitem.RelationType) ([]Neighbor, error)

	Close() error
}

// ItemFilter narrows item queries. Zero fields match everything.
type ItemFilter struct {
	ChatID    string
	ProjectID string
	Types     []ctxitem.ItemType
	Since     time.Time

	// ExcludeID drops one item from the result.
	ExcludeID string

	// Limit caps the result size after ordering; zero means unlimited.
	Limit int
}

// Match reports whether it passes the filter.
func (f ItemFilter) Match(it *ctxitem.Item) bool {
	if f.ChatID != "" && it.ChatID != f.ChatID {
		return false
	}
	if f.ProjectID != "" && it.ProjectID != f.ProjectID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, it.Type) {
		return false
	}
	if !f.Since.IsZero() && it.Timestamp.Before(f.Since) {
		return false
	}
	if f.ExcludeID != "" && it.ID == f.ExcludeID {
		return false
	}
	return true
}

// VectorHit is one vector search result.
type VectorHit struct {
	Item       *ctxitem.Item
	Similarity float64
}

// Neighbor is an item adjacent to the queried item.
type Neighbor struct {
	Item         *ctxitem.Item
	Relationship ctxitem.Relationship

	// Outgoing is true when the edge points from the queried item.
	Outgoing bool
}

func validateItem(it *ctxitem.Item) error {
	if it == nil {
		return ctxitem.Invalidf("nil item")
	}
	if it.ID == "" {
		return ctxitem.Invalidf("item id is required")
	}
	if !it.Type.Valid() {
		return ctxitem.Invalidf("item %s has unknown type %q", it.ID, it.Type)
	}
	return nil
}

func validateRelationship(r ctxitem.Relationship) error {
	if r.FromID == "" || r.ToID == "" {
		return ctxitem.Invalidf("relationship endpoints are required")
	}
	if r.FromID == r.ToID {
		return ctxitem.Invalidf("self relationship on %s", r.FromID)
	}
	if !r.Type.Valid() {
		return ctxitem.Invalidf("unknown relationship type %q", r.Type)
	}
	if r.Type == ctxitem.RelRelatedTo && r.Properties.Similarity == nil {
		return ctxitem.Invalidf("RELATED_TO requires a similarity")
	}
	return nil
}

// mergeItem folds the persisted state of an item into an incoming upsert.
func mergeItem(incoming, existing *ctxitem.Item) {
	if existing == nil {
		return
	}
	incoming.RaiseImportance(existing.ImportanceScore)
	if incoming.Embedding == nil {
		incoming.Embedding = existing.Embedding
	}
	if !incoming.IsSummarized && existing.IsSummarized {
		incoming.Summary = existing.Summary
		incoming.IsSummarized = true
	}
}

func containsAny(content string, keywords []string) bool {
	lower := strings.ToLower(content)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func missingEndpoint(id string) error {
	return fmt.Errorf("%w: relationship endpoint %s", ctxitem.ErrNotFound, id)
}
