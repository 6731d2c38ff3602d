package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fyrsmithlabs/ctxgraph/internal/telemetry"
)

func TestMemoryStore_Spans(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	otel.SetTracerProvider(tt.TracerProvider())
	defer otel.SetTracerProvider(sdktrace.NewTracerProvider())

	s := newTestMemoryStore(t, MemoryConfig{})
	seed(t, s)

	hits, err := s.VectorSearch(context.Background(), []float32{1, 0, 0}, 2, 0.5, ItemFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	tt.AssertSpanExists(t, "MemoryStore.UpsertItems")
	tt.AssertSpanAttribute(t, "MemoryStore.UpsertItems", "item_count", int64(4))
	tt.AssertSpanAttribute(t, "MemoryStore.VectorSearch", "k", int64(2))
	tt.AssertSpanAttribute(t, "MemoryStore.VectorSearch", "min_similarity", 0.5)
}
