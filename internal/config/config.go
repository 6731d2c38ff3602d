// Package config loads ctxgraph configuration from a YAML file and
// CTXGRAPH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ctxgraph/internal/embeddings"
	"github.com/fyrsmithlabs/ctxgraph/internal/extraction"
	"github.com/fyrsmithlabs/ctxgraph/internal/graphstore"
	"github.com/fyrsmithlabs/ctxgraph/internal/injection"
	"github.com/fyrsmithlabs/ctxgraph/internal/logging"
	"github.com/fyrsmithlabs/ctxgraph/internal/relationship"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
	"github.com/fyrsmithlabs/ctxgraph/internal/secrets"
	"github.com/fyrsmithlabs/ctxgraph/internal/telemetry"
)

// Config holds the complete ctxgraph configuration.
type Config struct {
	Logging       logging.Config      `koanf:"logging"`
	Server        ServerConfig        `koanf:"server"`
	Store         StoreConfig         `koanf:"store"`
	Tokens        TokensConfig        `koanf:"tokens"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Extraction    extraction.Config   `koanf:"extraction"`
	Relationships relationship.Config `koanf:"relationships"`
	Search        search.Config       `koanf:"search"`
	Injection     injection.Config    `koanf:"injection"`
	Secrets       secrets.Config      `koanf:"secrets"`
	Telemetry     telemetry.Config    `koanf:"telemetry"`
}

// ServerConfig configures the HTTP transport. RequestTimeout also bounds
// each MCP tool call.
type ServerConfig struct {
	HTTPHost        string   `koanf:"http_host"`
	HTTPPort        int      `koanf:"http_port"`
	RequestTimeout  Duration `koanf:"request_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// BodyLimit caps request bodies, in echo notation ("10M").
	BodyLimit string `koanf:"body_limit"`
	// TranscriptRoot confines transcript files named by clients. Empty
	// allows any path without traversal.
	TranscriptRoot string `koanf:"transcript_root"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.HTTPHost, s.HTTPPort)
}

// StoreConfig selects and configures the graph store.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend  string                  `koanf:"backend"`
	Memory   graphstore.MemoryConfig `koanf:"memory"`
	Postgres PostgresConfig          `koanf:"postgres"`
}

// PostgresConfig mirrors graphstore.PostgresConfig with a redacted DSN.
type PostgresConfig struct {
	DSN         Secret `koanf:"dsn"`
	MaxConns    int32  `koanf:"max_conns"`
	SkipMigrate bool   `koanf:"skip_migrate"`
}

// StoreConfig converts to the graphstore form.
func (p PostgresConfig) StoreConfig() graphstore.PostgresConfig {
	return graphstore.PostgresConfig{DSN: p.DSN.Value(), MaxConns: p.MaxConns, SkipMigrate: p.SkipMigrate}
}

// TokensConfig selects the token estimator.
type TokensConfig struct {
	// Estimator is "heuristic" or "tiktoken".
	Estimator string `koanf:"estimator"`
	Encoding  string `koanf:"encoding"`
}

// EmbeddingsConfig combines provider and service settings under one section.
type EmbeddingsConfig struct {
	embeddings.ProviderConfig `koanf:",squash"`
	embeddings.ServiceConfig  `koanf:",squash"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: logging.DefaultConfig(),
		Server: ServerConfig{
			HTTPHost:        "127.0.0.1",
			HTTPPort:        9191,
			RequestTimeout:  Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			BodyLimit:       "10M",
		},
		Store: StoreConfig{
			Backend: "memory",
			Memory:  graphstore.MemoryConfig{Collection: "ctxgraph_items"},
		},
		Tokens: TokensConfig{Estimator: "heuristic", Encoding: "cl100k_base"},
		Embeddings: EmbeddingsConfig{
			ProviderConfig: embeddings.ProviderConfig{Provider: "hash", Dimension: 384},
			ServiceConfig:  embeddings.DefaultServiceConfig(),
		},
		Extraction:    extraction.DefaultConfig(),
		Relationships: relationship.DefaultConfig(),
		Search:        search.DefaultConfig(),
		Injection:     injection.DefaultConfig(),
		Secrets:       secrets.DefaultConfig(),
		Telemetry:     *telemetry.NewDefaultConfig(),
	}
}

// applyDefaults fills fields a file or environment left at zero.
func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = d.Server.HTTPPort
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = d.Server.RequestTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if cfg.Server.BodyLimit == "" {
		cfg.Server.BodyLimit = d.Server.BodyLimit
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = d.Store.Backend
	}
	cfg.Store.Memory.ApplyDefaults()
	if cfg.Tokens.Estimator == "" {
		cfg.Tokens.Estimator = d.Tokens.Estimator
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = d.Embeddings.Provider
	}
	cfg.Extraction.ApplyDefaults()
	cfg.Search.ApplyDefaults()
	cfg.Injection.ApplyDefaults()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.HTTPPort)
	}
	if c.Server.RequestTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}

	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if !c.Store.Postgres.DSN.IsSet() {
			return errors.New("store.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q (memory or postgres)", c.Store.Backend)
	}

	switch c.Tokens.Estimator {
	case "heuristic", "tiktoken":
	default:
		return fmt.Errorf("unknown token estimator %q (heuristic or tiktoken)", c.Tokens.Estimator)
	}

	switch c.Embeddings.Provider {
	case "hash", "fastembed":
	case "tei":
		if c.Embeddings.BaseURL == "" {
			return errors.New("embeddings.base_url is required for the tei provider")
		}
	default:
		return fmt.Errorf("unknown embeddings provider %q (hash, fastembed or tei)", c.Embeddings.Provider)
	}

	if a := c.Extraction.SummaryAlgorithm; a != "lines" && a != "extractive" {
		return fmt.Errorf("unknown summary algorithm %q (lines or extractive)", a)
	}

	r := c.Relationships
	if r.EvolutionMin >= r.EvolutionMax {
		return fmt.Errorf("relationships.evolution_min (%v) must be below evolution_max (%v)", r.EvolutionMin, r.EvolutionMax)
	}

	if f := c.Search.SimilarityFloor; f <= 0 || f > 1 {
		return fmt.Errorf("search.similarity_floor must be in (0,1], got %v", f)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds max_limit (%d)", c.Search.DefaultLimit, c.Search.MaxLimit)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	in := c.Injection
	if in.RelevanceWeight < 0 || in.RecencyWeight < 0 || in.ImportanceWeight < 0 {
		return errors.New("injection weights must not be negative")
	}
	if s := in.RegularBudgetShare; s <= 0 || s > 1 {
		return fmt.Errorf("injection.regular_budget_share must be in (0,1], got %v", s)
	}
	return nil
}
