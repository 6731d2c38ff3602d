package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/config"
	"github.com/fyrsmithlabs/ctxgraph/internal/conversation"
	"github.com/fyrsmithlabs/ctxgraph/internal/embeddings"
	"github.com/fyrsmithlabs/ctxgraph/internal/extraction"
	"github.com/fyrsmithlabs/ctxgraph/internal/graphstore"
	"github.com/fyrsmithlabs/ctxgraph/internal/injection"
	"github.com/fyrsmithlabs/ctxgraph/internal/memory"
	"github.com/fyrsmithlabs/ctxgraph/internal/relationship"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
	"github.com/fyrsmithlabs/ctxgraph/internal/secrets"
	"github.com/fyrsmithlabs/ctxgraph/internal/tokens"
)

// Registry provides access to the built services.
type Registry interface {
	Context() *memory.Service
	Store() graphstore.Store
	Embeddings() *embeddings.Service
	Search() *search.Engine
	Scrubber() *secrets.Scrubber
	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	Context    *memory.Service
	Store      graphstore.Store
	Embeddings *embeddings.Service
	Search     *search.Engine
	Scrubber   *secrets.Scrubber
}

type registry struct {
	context    *memory.Service
	store      graphstore.Store
	embeddings *embeddings.Service
	search     *search.Engine
	scrubber   *secrets.Scrubber
}

// NewRegistry creates a registry over already built services.
func NewRegistry(opts Options) Registry {
	return &registry{
		context:    opts.Context,
		store:      opts.Store,
		embeddings: opts.Embeddings,
		search:     opts.Search,
		scrubber:   opts.Scrubber,
	}
}

func (r *registry) Context() *memory.Service        { return r.context }
func (r *registry) Store() graphstore.Store         { return r.store }
func (r *registry) Embeddings() *embeddings.Service { return r.embeddings }
func (r *registry) Search() *search.Engine          { return r.search }
func (r *registry) Scrubber() *secrets.Scrubber     { return r.scrubber }

// Close releases the store and the embedding provider.
func (r *registry) Close() error {
	var errs []error
	if r.context != nil {
		if err := r.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	} else if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if r.embeddings != nil {
		if err := r.embeddings.Close(); err != nil {
			errs = append(errs, fmt.Errorf("embeddings close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Build constructs every service described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Registry, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	estimator := tokens.New(cfg.Tokens.Estimator, cfg.Tokens.Encoding, logger)

	provider := embeddings.NewProviderWithFallback(cfg.Embeddings.ProviderConfig, logger)
	emb := embeddings.NewService(provider, cfg.Embeddings.ServiceConfig, logger)

	extractor, err := extraction.NewExtractor(cfg.Extraction, extraction.Deps{
		Logger:    logger.Named("extraction"),
		Estimator: estimator,
		Linker:    relationship.NewDetector(cfg.Relationships, logger.Named("relationship")),
		Metrics:   extraction.NewMetrics(logger),
	})
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("creating extractor: %w", err)
	}

	engine := search.NewEngine(store, emb, cfg.Search, logger.Named("search"))
	injector := injection.NewInjector(engine, estimator, cfg.Injection, logger.Named("injection"))

	scrubber, err := secrets.New(cfg.Secrets, logger.Named("secrets"))
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}

	svc, err := memory.NewService(memory.Options{
		Store:     store,
		Extractor: extractor,
		Embedder:  emb,
		Retriever: engine,
		Injector:  injector,
		Scrubber:  scrubber,
		Parser:    conversation.NewParser(),
		Logger:    logger.Named("memory"),

		TranscriptRoot: cfg.Server.TranscriptRoot,
	})
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		return nil, err
	}

	logger.Info("services ready",
		zap.String("store", cfg.Store.Backend),
		zap.String("embedding_model", emb.Model()),
		zap.Int("embedding_dimension", emb.Dimension()),
		zap.String("token_estimator", cfg.Tokens.Estimator),
		zap.Bool("secret_scrubbing", scrubber.Enabled()),
	)

	return NewRegistry(Options{
		Context:    svc,
		Store:      store,
		Embeddings: emb,
		Search:     engine,
		Scrubber:   scrubber,
	}), nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (graphstore.Store, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		s, err := graphstore.NewMemoryStore(cfg.Store.Memory, logger.Named("graphstore"))
		if err != nil {
			return nil, fmt.Errorf("opening memory store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := graphstore.NewPostgresStore(ctx, cfg.Store.Postgres.StoreConfig(), logger.Named("graphstore"))
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
