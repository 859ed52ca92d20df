package servicex

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.eggybyte.com/o11y/configx"
	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/interceptx"
	"go.eggybyte.com/o11y/logx"
	"go.eggybyte.com/o11y/metricx"
	"go.eggybyte.com/o11y/obsx"
	"go.eggybyte.com/o11y/rootspanx"
	"go.eggybyte.com/o11y/spanx"
)

// RootFieldsMetric is the gauge root span fields are exported under.
const RootFieldsMetric = "o11y_root_span_fields"

// ConfigFile is the optional YAML file configuration is loaded from.
type ConfigFile string

// DataSources maps pool names to the databases bound under rootspanx.DataSourcePrefix.
type DataSources map[string]*sql.DB

// ProviderSet builds a Kit with google/wire.
var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	configx.NewStore,
	ProvideRegistry,
	ProvideMetricsProvider,
	ProvideTracerProvider,
	ProvideMetricRegistry,
	metricx.NewManager,
	ProvideDirectory,
	ProvideRootSpanProviders,
	ProvideSpanManager,
	ProvideInterceptorOptions,
	NewKit,
	wire.Bind(new(log.Logger), new(*logx.Logger)),
	wire.Bind(new(metricx.Config), new(*configx.Store)),
)

// ProvideConfig loads configuration from file and the O11Y_* environment.
func ProvideConfig(file ConfigFile) (*configx.Config, error) {
	return configx.Load(configx.LoadOptions{File: string(file)})
}

// ProvideLogger creates a zap backed logger with the configured format and level.
func ProvideLogger(cfg *configx.Config) *logx.Logger {
	return logx.New(
		logx.WithFormat(logx.Format(cfg.LogFormat)),
		logx.WithLevel(cfg.LogLevel),
	)
}

// ProvideRegistry creates the Prometheus registry shared by every exporter.
func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ProvideMetricsProvider creates the OTel metrics provider exporting into registry.
func ProvideMetricsProvider(ctx context.Context, cfg *configx.Config, registry *prometheus.Registry) (*obsx.Provider, error) {
	return obsx.NewProvider(ctx, obsx.Options{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Registry:       registry,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		WriteKey:       cfg.WriteKey,
		Dataset:        cfg.Dataset,
	})
}

// ProvideTracerProvider creates the SDK tracer provider and installs it globally.
func ProvideTracerProvider(ctx context.Context, cfg *configx.Config) (*sdktrace.TracerProvider, error) {
	return newTracerProvider(ctx, cfg, nil)
}

func newTracerProvider(ctx context.Context, cfg *configx.Config, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	tp, err := obsx.NewTracerProvider(ctx, obsx.TracingOptions{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		WriteKey:       cfg.WriteKey,
		Dataset:        cfg.Dataset,
		SampleRate:     cfg.BaseSampleRate,
		Exporter:       exporter,
	})
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// ProvideMetricRegistry creates the metric registry over the shared Prometheus registry.
func ProvideMetricRegistry(registry *prometheus.Registry, logger log.Logger) *metricx.Registry {
	return metricx.NewRegistry(registry, logger)
}

// ProvideDirectory binds every data source as an SQLPool under jdbc/<name>.
func ProvideDirectory(sources DataSources) (*rootspanx.Directory, error) {
	dir := rootspanx.NewDirectory()
	for _, name := range sortedNames(sources) {
		if err := dir.Bind(rootspanx.DataSourcePrefix+name, rootspanx.NewSQLPool(sources[name])); err != nil {
			return nil, fmt.Errorf("bind data source %q: %w", name, err)
		}
	}
	return dir, nil
}

// ProvideRootSpanProviders returns the connection pool and runtime field providers.
func ProvideRootSpanProviders(store *configx.Store, dir *rootspanx.Directory, logger log.Logger) []rootspanx.Provider {
	return []rootspanx.Provider{
		rootspanx.NewDBConnectionFields(store, dir, logger),
		rootspanx.NewRuntimeFields(nil, logger),
	}
}

// ProvideSpanManager creates the span manager merging providers into root spans.
func ProvideSpanManager(tp *sdktrace.TracerProvider, providers []rootspanx.Provider, logger log.Logger) *spanx.Manager {
	return spanx.New(tp, spanx.Options{Providers: providers, Logger: logger})
}

// ProvideInterceptorOptions wires the interceptors to the live configuration and span manager.
func ProvideInterceptorOptions(store *configx.Store, spans *spanx.Manager, logger log.Logger) interceptx.Options {
	return interceptx.Options{Config: store, Spans: spans, Logger: logger}
}

func sortedNames(sources DataSources) []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
