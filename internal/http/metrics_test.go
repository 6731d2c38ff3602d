package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestMetricsMiddleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m := newHTTPMetrics(provider.Meter("test"), zap.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/items/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound, "no such item")
		}
		return c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/items/a", "/items/b", "/items/missing", "/nowhere"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "ctxgraph.http.requests_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				endpoint, _ := dp.Attributes.Value(attribute.Key("endpoint"))
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				counts[endpoint.AsString()+" "+status.Emit()] += dp.Value
			}
		}
	}

	assert.Equal(t, int64(2), counts["/items/:id 200"])
	assert.Equal(t, int64(1), counts["/items/:id 404"])
	assert.NotContains(t, counts, "/items/a 200")

	var total int64
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, int64(4), total)
}

func TestNewHTTPMetrics_GlobalMeter(t *testing.T) {
	m := NewHTTPMetrics(zap.NewNop())
	require.NotNil(t, m)
	assert.NotNil(t, m.requestsTotal)
}
