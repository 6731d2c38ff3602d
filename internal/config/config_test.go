package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout.Duration())
	assert.Equal(t, "127.0.0.1:9191", cfg.Server.Addr())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 70000 }, "invalid server port"},
		{"zero timeout", func(c *Config) { c.Server.RequestTimeout = 0 }, "timeouts must be positive"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "unknown store backend"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres" }, "dsn is required"},
		{"unknown estimator", func(c *Config) { c.Tokens.Estimator = "words" }, "unknown token estimator"},
		{"tei without url", func(c *Config) { c.Embeddings.Provider = "tei" }, "base_url is required"},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "openai" }, "unknown embeddings provider"},
		{"unknown summary", func(c *Config) { c.Extraction.SummaryAlgorithm = "llm" }, "unknown summary algorithm"},
		{"inverted evolution band", func(c *Config) { c.Relationships.EvolutionMin = 0.96 }, "evolution_min"},
		{"similarity floor", func(c *Config) { c.Search.SimilarityFloor = 0 }, "similarity_floor"},
		{"limits", func(c *Config) { c.Search.DefaultLimit = c.Search.MaxLimit + 1 }, "exceeds max_limit"},
		{"negative weight", func(c *Config) { c.Injection.RecencyWeight = -1 }, "must not be negative"},
		{"budget share", func(c *Config) { c.Injection.RegularBudgetShare = 1.5 }, "regular_budget_share"},
		{"logging", func(c *Config) { c.Logging.Format = "xml" }, "logging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidatePostgres(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "postgres"
	cfg.Store.Postgres.DSN = "postgres://u:p@localhost/ctxgraph"
	require.NoError(t, cfg.Validate())

	pg := cfg.Store.Postgres.StoreConfig()
	assert.Equal(t, "postgres://u:p@localhost/ctxgraph", pg.DSN)
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.Logging = Default().Logging
	cfg.Relationships = Default().Relationships
	applyDefaults(&cfg)

	assert.Equal(t, 9191, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "heuristic", cfg.Tokens.Estimator)
	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	assert.NotEmpty(t, cfg.Extraction.DecisionPatterns)
	assert.NoError(t, cfg.Validate())
}

func TestSecret(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "Secret([REDACTED])", s.GoString())
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(b))

	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("45s")))
	assert.Equal(t, 45*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("soon")))
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
}
