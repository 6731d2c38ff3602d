package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/config"
	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/memory"
)

func TestBuild_DefaultConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Store.Memory.SnapshotPath = filepath.Join(t.TempDir(), "graph.json")

	reg, err := Build(ctx, &cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	require.NotNil(t, reg.Context())
	require.NotNil(t, reg.Store())
	require.NotNil(t, reg.Search())
	assert.True(t, reg.Scrubber().Enabled())
	assert.Equal(t, cfg.Embeddings.Dimension, reg.Embeddings().Dimension())

	resp, err := reg.Context().ExtractContext(ctx, memory.ExtractRequest{
		Text:      "We decided to use PostgreSQL for storage.",
		ChatID:    "chat-1",
		ProjectID: "proj",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ByType[ctxitem.TypeDecision])

	results, err := reg.Context().SearchContext(ctx, memory.SearchRequest{Query: "PostgreSQL storage"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, ctxitem.TypeDecision, results[0].Item.Type)
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, nil, nil)
	require.Error(t, err)

	cfg := config.Default()
	cfg.Store.Backend = "sqlite"
	_, err = Build(ctx, &cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")

	cfg = config.Default()
	cfg.Secrets.AllowList = []string{"("}
	_, err = Build(ctx, &cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating scrubber")
}

func TestRegistry_CloseWithoutServices(t *testing.T) {
	reg := NewRegistry(Options{})
	assert.NoError(t, reg.Close())
}
