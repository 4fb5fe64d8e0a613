package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
)

func TestNewManager_Disabled(t *testing.T) {
	mgr, err := NewManager(fxtest.NewLifecycle(t), config.Config{Observability: config.Observability{
		ServiceName: "ordertrack",
	}}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.MetricsHandler())
}

func TestNewManager_NoneExporters(t *testing.T) {
	mgr, err := NewManager(fxtest.NewLifecycle(t), config.Config{Observability: config.Observability{
		ServiceName:     "ordertrack",
		EnableTracing:   true,
		TraceExporter:   "none",
		EnableMetrics:   true,
		MetricsExporter: "none",
	}}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
}

func TestNewManager_PrometheusServesOrderMetrics(t *testing.T) {
	cfg := config.Config{Observability: config.Observability{
		ServiceName:     "ordertrack",
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
		PrometheusPath:  "/metrics",
	}}

	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	lc.RequireStart()
	t.Cleanup(lc.RequireStop)

	require.True(t, mgr.MetricsEnabled())
	assert.Equal(t, "/metrics", mgr.PrometheusPath())

	counter, err := otel.Meter("test").Int64Counter("orders.mutations")
	require.NoError(t, err)
	counter.Add(t.Context(), 3, metric.WithAttributes(
		attribute.String("operation", "create"),
		attribute.Int64("order.id", 42),
	))

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "orders_mutations")
	assert.Contains(t, body, `operation="create"`)
	assert.NotContains(t, body, "order_id", "views keep per-order ids out of the series")
	assert.Contains(t, body, "go_goroutines")

	// A second manager gets its own registry.
	_, err = NewManager(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	assert.NoError(t, err)
}
