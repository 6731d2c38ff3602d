package graphstore

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

var tracer = otel.Tracer("ctxgraph.graphstore")

// MemoryConfig configures a MemoryStore.
type MemoryConfig struct {
	// SnapshotPath is a JSON file loaded on open and written on Flush and
	// Close. Empty disables persistence.
	SnapshotPath string `koanf:"snapshot_path"`

	// Collection names the chromem collection holding item embeddings.
	Collection string `koanf:"collection"`
}

// ApplyDefaults sets default values for unset fields.
func (c *MemoryConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "ctxgraph_items"
	}
}

// MemoryStore is an in-process Store. Graph state lives in maps guarded by
// one RWMutex; embeddings are indexed in a chromem-go collection.
type MemoryStore struct {
	cfg    MemoryConfig
	logger *zap.Logger

	mu    sync.RWMutex
	chats map[string]*ctxitem.Chat
	items map[string]*ctxitem.Item
	edges map[ctxitem.EdgeKey]ctxitem.Relationship
	adj   map[string]map[ctxitem.EdgeKey]struct{}

	db        *chromem.DB
	coll      *chromem.Collection
	dimension int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore and loads the snapshot when one is
// configured and present.
func NewMemoryStore(cfg MemoryConfig, logger *zap.Logger) (*MemoryStore, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	db := chromem.NewDB()
	// Vectors always arrive precomputed; the collection never embeds text.
	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, func(context.Context, string) ([]float32, error) {
		return nil, ErrVectorUnavailable
	})
	if err != nil {
		return nil, fmt.Errorf("creating chromem collection %s: %w", cfg.Collection, err)
	}

	s := &MemoryStore{
		cfg:    cfg,
		logger: logger,
		chats:  make(map[string]*ctxitem.Chat),
		items:  make(map[string]*ctxitem.Item),
		edges:  make(map[ctxitem.EdgeKey]ctxitem.Relationship),
		adj:    make(map[string]map[ctxitem.EdgeKey]struct{}),
		db:     db,
		coll:   coll,
	}

	if cfg.SnapshotPath != "" {
		if err := s.load(context.Background()); err != nil {
			return nil, err
		}
	}

	logger.Info("memory store initialized",
		zap.String("snapshot", cfg.SnapshotPath),
		zap.String("collection", cfg.Collection),
		zap.Int("items", len(s.items)),
		zap.Int("relationships", len(s.edges)),
	)
	return s, nil
}

// UpsertChat implements Store.
func (s *MemoryStore) UpsertChat(ctx context.Context, chat ctxitem.Chat) error {
	if chat.ID == "" {
		return ctxitem.Invalidf("chat id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.chats[chat.ID]; ok {
		if chat.Title == "" {
			chat.Title = existing.Title
		}
		if chat.CreatedAt.IsZero() || (!existing.CreatedAt.IsZero() && existing.CreatedAt.Before(chat.CreatedAt)) {
			chat.CreatedAt = existing.CreatedAt
		}
	}
	s.chats[chat.ID] = &chat
	return nil
}

// UpsertItems implements Store.
func (s *MemoryStore) UpsertItems(ctx context.Context, items []*ctxitem.Item) error {
	ctx, span := tracer.Start(ctx, "MemoryStore.UpsertItems")
	defer span.End()
	span.SetAttributes(attribute.Int("item_count", len(items)))

	for _, it := range items {
		if err := validateItem(it); err != nil {
			span.RecordError(err)
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var indexed int
	for _, it := range items {
		c := it.Clone()
		mergeItem(c, s.items[c.ID])
		s.items[c.ID] = c
		if s.index(ctx, c) {
			indexed++
		}
	}

	span.SetAttributes(attribute.Int("indexed", indexed))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// index adds it to the vector collection. Caller holds the write lock.
func (s *MemoryStore) index(ctx context.Context, it *ctxitem.Item) bool {
	if len(it.Embedding) == 0 || isZero(it.Embedding) {
		return false
	}
	if s.dimension == 0 {
		s.dimension = len(it.Embedding)
	}
	if len(it.Embedding) != s.dimension {
		s.logger.Warn("skipping embedding with unexpected dimension",
			zap.String("item_id", it.ID),
			zap.Int("got", len(it.Embedding)),
			zap.Int("want", s.dimension))
		return false
	}
	doc := chromem.Document{
		ID:        it.ID,
		Content:   it.Content,
		Embedding: append([]float32(nil), it.Embedding...),
		Metadata: map[string]string{
			"chat_id":    it.ChatID,
			"project_id": it.ProjectID,
			"type":       string(it.Type),
		},
	}
	if err := s.coll.AddDocument(ctx, doc); err != nil {
		s.logger.Warn("indexing embedding failed", zap.String("item_id", it.ID), zap.Error(err))
		return false
	}
	return true
}

// UpsertRelationships implements Store.
func (s *MemoryStore) UpsertRelationships(ctx context.Context, rels []ctxitem.Relationship) error {
	for _, r := range rels {
		if err := validateRelationship(r); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rels {
		for _, id := range []string{r.FromID, r.ToID} {
			if !s.nodeExists(id) {
				return missingEndpoint(id)
			}
		}
	}
	for _, r := range rels {
		s.putEdge(r)
	}
	return nil
}

func (s *MemoryStore) nodeExists(id string) bool {
	if _, ok := s.items[id]; ok {
		return true
	}
	_, ok := s.chats[id]
	return ok
}

// putEdge stores r. Caller holds the write lock.
func (s *MemoryStore) putEdge(r ctxitem.Relationship) {
	key := r.Key()
	s.edges[key] = r
	for _, id := range []string{r.FromID, r.ToID} {
		if s.adj[id] == nil {
			s.adj[id] = make(map[ctxitem.EdgeKey]struct{})
		}
		s.adj[id][key] = struct{}{}
	}
}

// DeleteRelationship implements Store.
func (s *MemoryStore) DeleteRelationship(ctx context.Context, key ctxitem.EdgeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[key]; !ok {
		return fmt.Errorf("%w: relationship %s -[%s]-> %s", ctxitem.ErrNotFound, key.From, key.Type, key.To)
	}
	delete(s.edges, key)
	delete(s.adj[key.From], key)
	delete(s.adj[key.To], key)
	return nil
}

// GetItem implements Store.
func (s *MemoryStore) GetItem(ctx context.Context, id string) (*ctxitem.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: item %s", ctxitem.ErrNotFound, id)
	}
	return it.Clone(), nil
}

// GetChat implements Store.
func (s *MemoryStore) GetChat(ctx context.Context, id string) (*ctxitem.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("%w: chat %s", ctxitem.ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

// ListItems implements Store.
func (s *MemoryStore) ListItems(ctx context.Context, filter ItemFilter) ([]*ctxitem.Item, error) {
	return s.collect(filter, nil), nil
}

// KeywordCandidates implements Store.
func (s *MemoryStore) KeywordCandidates(ctx context.Context, keywords []string, filter ItemFilter) ([]*ctxitem.Item, error) {
	_, span := tracer.Start(ctx, "MemoryStore.KeywordCandidates")
	defer span.End()
	span.SetAttributes(attribute.Int("keyword_count", len(keywords)))

	if len(keywords) == 0 {
		return nil, nil
	}
	out := s.collect(filter, func(it *ctxitem.Item) bool {
		return containsAny(it.Content, keywords)
	})
	span.SetAttributes(attribute.Int("results_count", len(out)))
	return out, nil
}

func (s *MemoryStore) collect(filter ItemFilter, keep func(*ctxitem.Item) bool) []*ctxitem.Item {
	s.mu.RLock()
	out := make([]*ctxitem.Item, 0)
	for _, it := range s.items {
		if filter.Match(it) && (keep == nil || keep(it)) {
			out = append(out, it.Clone())
		}
	}
	s.mu.RUnlock()

	sortOldestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// VectorSearch implements Store.
func (s *MemoryStore) VectorSearch(ctx context.Context, vec []float32, k int, minSimilarity float64, filter ItemFilter) ([]VectorHit, error) {
	ctx, span := tracer.Start(ctx, "MemoryStore.VectorSearch")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k), attribute.Float64("min_similarity", minSimilarity))

	if k <= 0 {
		return nil, ctxitem.Invalidf("k must be positive, got %d", k)
	}
	if len(vec) == 0 || isZero(vec) {
		return nil, fmt.Errorf("%w: empty query vector", ErrVectorUnavailable)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.coll.Count()
	if count == 0 {
		return nil, nil
	}
	if len(vec) != s.dimension {
		err := fmt.Errorf("%w: query dimension %d, index dimension %d", ErrVectorUnavailable, len(vec), s.dimension)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Types, chat, time and exclusion are filtered after the query, so
	// over-fetch whenever one of them is set.
	n := k
	if len(filter.Types) > 0 || filter.ChatID != "" || !filter.Since.IsZero() || filter.ExcludeID != "" {
		n = count
	}
	n = min(n, count)

	var meta map[string]string
	if filter.ProjectID != "" {
		meta = map[string]string{"project_id": filter.ProjectID}
	}
	results, err := s.coll.QueryEmbedding(ctx, vec, n, meta, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrVectorUnavailable, err)
	}

	hits := make([]VectorHit, 0, min(k, len(results)))
	for _, r := range results {
		sim := float64(r.Similarity)
		if sim < minSimilarity {
			continue
		}
		it, ok := s.items[r.ID]
		if !ok || !filter.Match(it) {
			continue
		}
		hits = append(hits, VectorHit{Item: it.Clone(), Similarity: ctxitem.Clamp01(sim)})
		if len(hits) == k {
			break
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Neighbors implements Store.
func (s *MemoryStore) Neighbors(ctx context.Context, id string, types ...ctxitem.RelationType) ([]Neighbor, error) {
	_, span := tracer.Start(ctx, "MemoryStore.Neighbors")
	defer span.End()
	span.SetAttributes(attribute.String("item_id", id))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Neighbor, 0, len(s.adj[id]))
	for key := range s.adj[id] {
		if len(types) > 0 && !slices.Contains(types, key.Type) {
			continue
		}
		otherID, outgoing := key.To, true
		if key.To == id {
			otherID, outgoing = key.From, false
		}
		other, ok := s.items[otherID]
		if !ok {
			continue
		}
		out = append(out, Neighbor{Item: other.Clone(), Relationship: s.edges[key], Outgoing: outgoing})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Relationship.Key(), out[j].Relationship.Key()
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	span.SetAttributes(attribute.Int("results_count", len(out)))
	return out, nil
}

// Flush writes the snapshot when one is configured.
func (s *MemoryStore) Flush() error {
	if s.cfg.SnapshotPath == "" {
		return nil
	}
	return s.save()
}

// Close flushes the snapshot.
func (s *MemoryStore) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	s.logger.Info("memory store closed")
	return nil
}

func sortOldestFirst(items []*ctxitem.Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.Before(items[j].Timestamp)
		}
		return items[i].ID < items[j].ID
	})
}

func isZero(vec []float32) bool {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	return norm == 0 || math.IsNaN(norm)
}
