package extraction

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

const instrumentationName = "github.com/fyrsmithlabs/ctxgraph/internal/extraction"

// Metrics records extraction counts and latency.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	items    metric.Int64Counter
	edges    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates extraction instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{meter: meter, logger: logger}

	var err error
	m.items, err = meter.Int64Counter(
		"ctxgraph.extraction.items_total",
		metric.WithDescription("Context items extracted, labeled by item type"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		logger.Warn("failed to create items counter", zap.Error(err))
	}

	m.edges, err = meter.Int64Counter(
		"ctxgraph.extraction.relationships_total",
		metric.WithDescription("Relationships inferred, labeled by relationship type"),
		metric.WithUnit("{edge}"),
	)
	if err != nil {
		logger.Warn("failed to create relationships counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"ctxgraph.extraction.duration_seconds",
		metric.WithDescription("Wall-clock time of one extraction run"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	return m
}

// Record adds one run's counts.
func (m *Metrics) Record(ctx context.Context, items []*ctxitem.Item, rels []ctxitem.Relationship, elapsed time.Duration) {
	if m == nil {
		return
	}
	if m.items != nil {
		byType := make(map[ctxitem.ItemType]int64)
		for _, it := range items {
			byType[it.Type]++
		}
		for typ, n := range byType {
			m.items.Add(ctx, n, metric.WithAttributes(attribute.String("type", string(typ))))
		}
	}
	if m.edges != nil {
		byType := make(map[ctxitem.RelationType]int64)
		for _, r := range rels {
			byType[r.Type]++
		}
		for typ, n := range byType {
			m.edges.Add(ctx, n, metric.WithAttributes(attribute.String("type", string(typ))))
		}
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds())
	}
}
