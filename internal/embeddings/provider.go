package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the model could not produce a vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates embeddings.
type Provider interface {
	// EmbedDocuments embeds passages for storage.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector width.
	Dimension() int
	// Model identifies the active model; it is part of every cache key.
	Model() string
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	// Provider is "hash", "fastembed" or "tei".
	Provider string `koanf:"provider"`
	// Model is the embedding model name.
	Model string `koanf:"model"`
	// Dimension is used by the hash provider.
	Dimension int `koanf:"dimension"`
	// BaseURL is the TEI server URL.
	BaseURL string `koanf:"base_url"`
	// CacheDir is the FastEmbed model cache directory.
	CacheDir string `koanf:"cache_dir"`
	// RequestsPerSecond limits TEI calls; zero means unlimited.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	// Timeout bounds one TEI request.
	Timeout time.Duration `koanf:"timeout"`
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		return NewHashProvider(cfg.Dimension), nil
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		return NewTEIProvider(TEIConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// NewProviderWithFallback creates the configured provider and falls back to
// the hash provider when it cannot be initialized.
func NewProviderWithFallback(cfg ProviderConfig, logger *zap.Logger) Provider {
	p, err := NewProvider(cfg)
	if err == nil {
		return p
	}
	if logger != nil {
		logger.Warn("embedding provider unavailable, using hash embeddings",
			zap.String("provider", cfg.Provider),
			zap.String("model", cfg.Model),
			zap.Error(err))
	}
	return NewHashProvider(cfg.Dimension)
}

// detectDimensionFromModel returns the embedding width for a model name,
// defaulting to 384.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}

// knownModelDimensions covers the models both FastEmbed and TEI commonly serve.
var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

func fastEmbedModelDimension(model string) (int, bool) {
	dim, ok := knownModelDimensions[model]
	return dim, ok
}
