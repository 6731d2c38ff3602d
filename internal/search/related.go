package search

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/graphstore"
)

// FindRelated ranks the graph neighbours of id. An item without neighbours
// falls back to its nearest items by embedding. Unknown ids yield an empty
// result.
func (e *Engine) FindRelated(ctx context.Context, id string, limit int) ([]Result, error) {
	limit = e.limit(limit)
	item, err := e.store.GetItem(ctx, id)
	if errors.Is(err, ctxitem.ErrNotFound) {
		return []Result{}, nil
	}
	if err != nil {
		return nil, persistenceErr(err)
	}

	neighbors, err := e.store.Neighbors(ctx, id)
	if err != nil {
		return nil, persistenceErr(err)
	}

	best := make(map[string]Result)
	for _, n := range neighbors {
		if n.Relationship.Type == ctxitem.RelBelongsTo {
			continue
		}
		score := relationScore(n.Relationship)
		if cur, ok := best[n.Item.ID]; ok && cur.Score >= score {
			continue
		}
		best[n.Item.ID] = Result{Item: n.Item, Score: score, MatchType: MatchGraph}
	}

	var results []Result
	if len(best) > 0 {
		results = make([]Result, 0, len(best))
		for _, r := range best {
			results = append(results, r)
		}
		sortResults(results)
	} else {
		results = e.nearest(ctx, item, limit)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	e.decorate(ctx, results, Keywords(item.Content))
	return results, nil
}

func relationScore(r ctxitem.Relationship) float64 {
	if r.Type == ctxitem.RelRelatedTo && r.Properties.Similarity != nil {
		return ctxitem.Clamp01(*r.Properties.Similarity)
	}
	if w, ok := relationWeights[r.Type]; ok {
		return w
	}
	return defaultRelationWeight
}

// nearest finds items closest to item by embedding. Failures are logged
// and yield no results.
func (e *Engine) nearest(ctx context.Context, item *ctxitem.Item, limit int) []Result {
	vec := item.Embedding
	if len(vec) == 0 {
		if e.embedder == nil {
			return []Result{}
		}
		var err error
		if vec, err = e.embedder.Embed(ctx, item.Content); err != nil {
			e.logger.Warn("embedding related item failed", zap.String("item_id", item.ID), zap.Error(err))
			return []Result{}
		}
	}
	hits, err := e.store.VectorSearch(ctx, vec, limit, 0, graphstore.ItemFilter{ExcludeID: item.ID})
	if err != nil {
		e.logger.Warn("nearest neighbour search failed", zap.String("item_id", item.ID), zap.Error(err))
		return []Result{}
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Item.ID == item.ID {
			continue
		}
		results = append(results, Result{Item: h.Item, Score: h.Similarity, MatchType: MatchSemantic})
	}
	return results
}

// EvolutionChain returns the items reachable from id over EVOLVES_TO edges
// in either direction within depth hops, oldest first. An item with no
// chain yields itself; unknown ids yield nothing.
func (e *Engine) EvolutionChain(ctx context.Context, id string, depth int) ([]*ctxitem.Item, error) {
	if depth <= 0 {
		depth = e.cfg.ChainDepth
	}
	start, err := e.store.GetItem(ctx, id)
	if errors.Is(err, ctxitem.ErrNotFound) {
		return []*ctxitem.Item{}, nil
	}
	if err != nil {
		return nil, persistenceErr(err)
	}

	seen := map[string]*ctxitem.Item{start.ID: start}
	frontier := []string{start.ID}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, cur := range frontier {
			neighbors, err := e.store.Neighbors(ctx, cur, ctxitem.RelEvolvesTo)
			if err != nil {
				return nil, persistenceErr(err)
			}
			for _, n := range neighbors {
				if _, ok := seen[n.Item.ID]; ok {
					continue
				}
				seen[n.Item.ID] = n.Item
				next = append(next, n.Item.ID)
			}
		}
		frontier = next
	}

	chain := make([]*ctxitem.Item, 0, len(seen))
	for _, it := range seen {
		chain = append(chain, it)
	}
	sort.Slice(chain, func(i, j int) bool {
		if !chain[i].Timestamp.Equal(chain[j].Timestamp) {
			return chain[i].Timestamp.Before(chain[j].Timestamp)
		}
		return chain[i].ID < chain[j].ID
	})
	return chain, nil
}

// sortResults orders by score, then importance, then id.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Item.ImportanceScore != b.Item.ImportanceScore {
			return a.Item.ImportanceScore > b.Item.ImportanceScore
		}
		return a.Item.ID < b.Item.ID
	})
}
