package observability

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
)

const (
	serviceVersion     = "0.1.0"
	shutdownTimeout    = 10 * time.Second
	otlpDialTimeout    = 10 * time.Second
	stdoutMetricPeriod = 30 * time.Second
)

// orderViews describe the instruments the order service and worker record, and keep their
// attribute sets to the documented keys.
var orderViews = []sdkmetric.View{
	sdkmetric.NewView(
		sdkmetric.Instrument{Name: "orders.mutations"},
		sdkmetric.Stream{
			Description:     "Order writes by operation",
			AttributeFilter: attribute.NewAllowKeysFilter("operation"),
		},
	),
	sdkmetric.NewView(
		sdkmetric.Instrument{Name: "worker.messages"},
		sdkmetric.Stream{
			Description:     "Order events consumed, by outcome",
			AttributeFilter: attribute.NewAllowKeysFilter("messaging.topic", "outcome"),
		},
	),
}

// Manager owns the process-wide trace and meter providers.
type Manager struct {
	cfg     config.Observability
	logger  *zap.Logger
	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
	scraper http.Handler
}

// Module exposes the observability manager to Fx.
var Module = fx.Provide(NewManager)

// NewManager builds the providers selected by configuration and installs them as the otel globals
// when the application starts. Unknown exporters disable their signal with a warning.
func NewManager(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	obs := cfg.Observability
	res, err := sdkresource.New(context.Background(),
		sdkresource.WithFromEnv(),
		sdkresource.WithHost(),
		sdkresource.WithAttributes(
			semconv.ServiceName(obs.ServiceName),
			semconv.ServiceVersion(serviceVersion),
			attribute.String("service.environment", obs.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	m := &Manager{cfg: obs, logger: logger}
	if obs.EnableTracing {
		if m.tracer, err = m.newTracerProvider(res); err != nil {
			return nil, err
		}
	}
	if obs.EnableMetrics {
		if m.meter, m.scraper, err = m.newMeterProvider(res); err != nil {
			return nil, err
		}
	}

	lc.Append(fx.Hook{OnStart: m.install, OnStop: m.shutdown})
	return m, nil
}

// TracingEnabled reports whether spans are exported.
func (m *Manager) TracingEnabled() bool { return m.tracer != nil }

// MetricsEnabled reports whether instruments are exported.
func (m *Manager) MetricsEnabled() bool { return m.meter != nil }

// MetricsHandler serves the Prometheus scrape endpoint; nil unless the prometheus exporter is active.
func (m *Manager) MetricsHandler() http.Handler { return m.scraper }

// PrometheusPath returns the configured metrics endpoint path.
func (m *Manager) PrometheusPath() string { return m.cfg.PrometheusPath }

func (m *Manager) install(context.Context) error {
	if m.tracer != nil {
		otel.SetTracerProvider(m.tracer)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	}
	if m.meter != nil {
		otel.SetMeterProvider(m.meter)
	}
	return nil
}

func (m *Manager) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if m.tracer != nil {
		errs = append(errs, m.tracer.Shutdown(ctx))
	}
	if m.meter != nil {
		errs = append(errs, m.meter.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (m *Manager) newTracerProvider(res *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch m.cfg.TraceExporter {
	case "", "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		if m.cfg.TraceEndpoint == "" {
			return nil, errors.New("OBS_OTLP_ENDPOINT must be set for otlp exporter")
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(m.cfg.TraceEndpoint)}
		if m.cfg.TraceInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		ctx, cancel := context.WithTimeout(context.Background(), otlpDialTimeout)
		defer cancel()
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "none":
		return nil, nil
	default:
		m.logger.Warn("unsupported trace exporter; tracing disabled", zap.String("exporter", m.cfg.TraceExporter))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res)), nil
}

func (m *Manager) newMeterProvider(res *sdkresource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	var (
		reader  sdkmetric.Reader
		scraper http.Handler
	)
	switch m.cfg.MetricsExporter {
	case "prometheus":
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, nil, err
		}
		reader = exporter
		scraper = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint(), stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return nil, nil, err
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(stdoutMetricPeriod))
	case "none":
		return nil, nil, nil
	default:
		m.logger.Warn("unsupported metrics exporter; metrics disabled", zap.String("exporter", m.cfg.MetricsExporter))
		return nil, nil, nil
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(reader), sdkmetric.WithResource(res)}
	for _, v := range orderViews {
		opts = append(opts, sdkmetric.WithView(v))
	}
	return sdkmetric.NewMeterProvider(opts...), scraper, nil
}
