// Package internal provides internal implementation for the obsx package.
package internal

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// DefaultPushInterval is the OTLP metric push interval.
const DefaultPushInterval = 60 * time.Second

// ProviderOptions holds configuration for the metrics provider.
type ProviderOptions struct {
	ServiceName    string
	ServiceVersion string
	InstanceID     string
	ResourceAttrs  map[string]string
	Registry       *promclient.Registry

	// OTLP push, enabled when Endpoint is set.
	Endpoint     string
	Insecure     bool
	WriteKey     string
	Dataset      string
	PushInterval time.Duration // Default: 60s
}

// Provider manages OpenTelemetry metrics provider with Prometheus export.
type Provider struct {
	MeterProvider *metric.MeterProvider
	Registry      *promclient.Registry
	Resource      *resource.Resource
}

// NewProvider creates a metrics provider whose Prometheus exporter registers
// into opts.Registry, or into a fresh registry when it is nil.
func NewProvider(ctx context.Context, opts ProviderOptions) (*Provider, error) {
	if opts.ServiceName == "" {
		return nil, fmt.Errorf("service name is required")
	}

	res, err := NewResource(ctx, ResourceOptions{
		ServiceName:    opts.ServiceName,
		ServiceVersion: opts.ServiceVersion,
		InstanceID:     opts.InstanceID,
		Attrs:          opts.ResourceAttrs,
	})
	if err != nil {
		return nil, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = promclient.NewRegistry()
	}

	readers := []metric.Option{}
	if opts.Endpoint != "" {
		exporter, err := newOTLPMetricExporter(ctx, opts)
		if err != nil {
			return nil, err
		}
		interval := opts.PushInterval
		if interval <= 0 {
			interval = DefaultPushInterval
		}
		readers = append(readers, metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))))
	}

	mp, err := createMeterProvider(res, registry, readers...)
	if err != nil {
		return nil, err
	}

	otel.SetMeterProvider(mp)

	return &Provider{
		MeterProvider: mp,
		Registry:      registry,
		Resource:      res,
	}, nil
}

// ResourceOptions describes the service a resource identifies.
type ResourceOptions struct {
	ServiceName    string
	ServiceVersion string
	InstanceID     string // Generated when empty
	Attrs          map[string]string
}

// NewResource creates an OpenTelemetry resource with service attributes.
func NewResource(ctx context.Context, opts ResourceOptions) (*resource.Resource, error) {
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
		semconv.ServiceInstanceID(opts.InstanceID),
	}

	keys := make([]string, 0, len(opts.Attrs))
	for k := range opts.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, opts.Attrs[k]))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// createMeterProvider creates a meter provider with Prometheus export and any extra readers.
func createMeterProvider(res *resource.Resource, registry *promclient.Registry, extra ...metric.Option) (*metric.MeterProvider, error) {
	promExporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
		prometheus.WithoutUnits(),           // Prometheus prefers base units without suffix
		prometheus.WithoutScopeInfo(),       // Remove otel_scope_* labels to reduce cardinality
		prometheus.WithoutCounterSuffixes(), // Remove _total suffix duplication
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := append([]metric.Option{
		metric.WithResource(res),
		metric.WithReader(promExporter),
	}, extra...)
	return metric.NewMeterProvider(opts...), nil
}

func newOTLPMetricExporter(ctx context.Context, opts ProviderOptions) (metric.Exporter, error) {
	clientOpts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(opts.Endpoint),
	}
	if opts.Insecure {
		clientOpts = append(clientOpts, otlpmetricgrpc.WithInsecure())
	}
	if headers := OTLPHeaders(opts.WriteKey, opts.Dataset); len(headers) > 0 {
		clientOpts = append(clientOpts, otlpmetricgrpc.WithHeaders(headers))
	}

	exporter, err := otlpmetricgrpc.New(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	return exporter, nil
}

// PrometheusHandler returns an HTTP handler serving every collector in the registry.
func (p *Provider) PrometheusHandler() http.Handler {
	if p.Registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("# Prometheus metrics not available\n"))
		})
	}

	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Shutdown gracefully shuts down the metrics provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
	}
	return nil
}
