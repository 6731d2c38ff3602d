package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestMetrics_RecordGeneration(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &Metrics{
		meter:  mp.Meter(embeddingsInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()

	ctx := context.Background()
	m.RecordGeneration(ctx, "hash-384", "embed_documents", 100*time.Millisecond, 10, nil)
	m.RecordGeneration(ctx, "hash-384", "embed_query", 50*time.Millisecond, 1, nil)
	m.RecordGeneration(ctx, "hash-384", "embed_documents", 25*time.Millisecond, 5, errors.New("generation failed"))
	m.Hit()
	m.Hit()
	m.Miss()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = true
			switch md.Name {
			case "ctxgraph.embedding.generation_duration_seconds":
				if hist, ok := md.Data.(metricdata.Histogram[float64]); ok {
					var total uint64
					for _, dp := range hist.DataPoints {
						total += dp.Count
					}
					if total != 3 {
						t.Errorf("expected 3 duration recordings, got %d", total)
					}
				}
			case "ctxgraph.embedding.errors_total":
				if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
					var total int64
					for _, dp := range sum.DataPoints {
						total += dp.Value
					}
					if total != 1 {
						t.Errorf("expected 1 error, got %d", total)
					}
				}
			case "ctxgraph.embedding.cache_hits_total":
				if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
					if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
						t.Errorf("expected 2 cache hits, got %+v", sum.DataPoints)
					}
				}
			}
		}
	}

	for _, name := range []string{
		"ctxgraph.embedding.generation_duration_seconds",
		"ctxgraph.embedding.batch_size",
		"ctxgraph.embedding.errors_total",
		"ctxgraph.embedding.cache_hits_total",
		"ctxgraph.embedding.cache_misses_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not found", name)
		}
	}
}
