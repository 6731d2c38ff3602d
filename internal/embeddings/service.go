package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/ctxgraph/internal/cache"
	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// ServiceConfig tunes the caching layer.
type ServiceConfig struct {
	// MaxInputChars is the longest text sent to the model; longer text keeps
	// its head and tail.
	MaxInputChars int `koanf:"max_input_chars"`

	// BatchSize is the number of texts per provider call.
	BatchSize int `koanf:"batch_size"`

	// MaxConcurrentBatches bounds in-flight provider calls per request.
	MaxConcurrentBatches int `koanf:"max_concurrent_batches"`

	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CacheMaxEntries int           `koanf:"cache_max_entries"`
}

// DefaultServiceConfig returns the standard limits.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxInputChars:        2000,
		BatchSize:            16,
		MaxConcurrentBatches: 4,
		CacheTTL:             24 * time.Hour,
		CacheMaxEntries:      10000,
	}
}

func (c *ServiceConfig) applyDefaults() {
	d := DefaultServiceConfig()
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = d.MaxInputChars
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = d.MaxConcurrentBatches
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = d.CacheMaxEntries
	}
}

// Service is a cache-aware front for a Provider.
type Service struct {
	provider Provider
	cfg      ServiceConfig
	cache    *cache.TTLCache[[]float32]
	metrics  *Metrics
	logger   *zap.Logger
}

// NewService wraps provider.
func NewService(provider Provider, cfg ServiceConfig, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := NewMetrics(logger)
	c := cache.New[[]float32](cfg.CacheTTL, cfg.CacheMaxEntries)
	c.SetObserver(metrics)
	return &Service{
		provider: provider,
		cfg:      cfg,
		cache:    c,
		metrics:  metrics,
		logger:   logger,
	}
}

// Model returns the active model identifier.
func (s *Service) Model() string { return s.provider.Model() }

// Dimension returns the active vector width.
func (s *Service) Dimension() int { return s.provider.Dimension() }

// Close closes the provider.
func (s *Service) Close() error { return s.provider.Close() }

// CacheKey returns the content address of text under model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Truncate keeps the head and tail of text when it exceeds maxChars runes.
func Truncate(text string, maxChars int) string {
	const sep = "\n...\n"
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}
	budget := maxChars - len(sep)
	if budget < 2 {
		return string(runes[:maxChars])
	}
	head := budget / 2
	tail := budget - head
	return string(runes[:head]) + sep + string(runes[len(runes)-tail:])
}

// Embed returns the query embedding of text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	text = Truncate(text, s.cfg.MaxInputChars)
	key := CacheKey(s.provider.Model()+"/query", text)
	if vec, ok := s.cache.Get(key); ok {
		return vec, nil
	}

	start := time.Now()
	vec, err := s.provider.EmbedQuery(ctx, text)
	s.metrics.RecordGeneration(ctx, s.provider.Model(), "embed_query", time.Since(start), 1, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ctxitem.ErrEmbeddingUnavailable, err)
	}
	s.cache.Set(key, vec)
	return vec, nil
}

// EmbedBatch returns document embeddings for texts in input order. Empty
// texts get a nil vector. Cache misses are sent to the provider in chunks
// of BatchSize with at most MaxConcurrentBatches chunks in flight.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	model := s.provider.Model() + "/document"

	var (
		missIdx  []int
		missText []string
		missKeys []string
	)
	for i, t := range texts {
		if t == "" {
			continue
		}
		t = Truncate(t, s.cfg.MaxInputChars)
		key := CacheKey(model, t)
		if vec, ok := s.cache.Get(key); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, t)
		missKeys = append(missKeys, key)
	}
	if len(missText) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentBatches)
	for lo := 0; lo < len(missText); lo += s.cfg.BatchSize {
		lo, hi := lo, min(lo+s.cfg.BatchSize, len(missText))
		g.Go(func() error {
			start := time.Now()
			vecs, err := s.provider.EmbedDocuments(gctx, missText[lo:hi])
			s.metrics.RecordGeneration(gctx, s.provider.Model(), "embed_documents", time.Since(start), hi-lo, err)
			if err != nil {
				return err
			}
			if len(vecs) != hi-lo {
				return fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(vecs), hi-lo)
			}
			for j, vec := range vecs {
				out[missIdx[lo+j]] = vec
				s.cache.Set(missKeys[lo+j], vec)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("%w: %w", ctxitem.ErrEmbeddingUnavailable, err)
	}
	return out, nil
}

// EmbedForItems embeds item content and returns vectors keyed by item id.
// On failure the map holds the items that did embed.
func (s *Service) EmbedForItems(ctx context.Context, items []*ctxitem.Item) (map[string][]float32, error) {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Content
	}
	vecs, err := s.EmbedBatch(ctx, texts)

	out := make(map[string][]float32, len(items))
	for i, it := range items {
		if i < len(vecs) && vecs[i] != nil {
			out[it.ID] = vecs[i]
		}
	}
	if err != nil {
		s.logger.Warn("embedding items failed",
			zap.Int("items", len(items)),
			zap.Int("embedded", len(out)),
			zap.Error(err))
	}
	return out, err
}
