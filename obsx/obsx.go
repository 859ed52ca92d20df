// Package obsx bootstraps the OpenTelemetry providers behind o11y.
//
// Overview:
//   - Responsibility: Metrics provider with Prometheus export, tracer provider with OTLP export
//   - Key Types: Options, Provider, TracingOptions
//   - Concurrency Model: Provider is safe for concurrent use
//   - Error Semantics: Constructors return errors for initialization failures
//   - Performance Notes: Field sources are read on scrape, never on the request path
//
// Usage:
//
//	provider, err := obsx.NewProvider(ctx, obsx.Options{
//	  ServiceName: "orders",
//	  Registry:    registry,
//	})
//	_, err = provider.RegisterFieldSource("o11y_root_span_fields", spans.RootFields)
//	defer provider.Shutdown(ctx)
package obsx

import (
	"context"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.eggybyte.com/o11y/obsx/internal"
)

// Options holds configuration for the metrics provider.
type Options struct {
	ServiceName    string               // Service name for metrics
	ServiceVersion string               // Service version
	InstanceID     string               // Service instance id, generated when empty
	ResourceAttrs  map[string]string    // Additional resource attributes
	Registry       *promclient.Registry // Registry the exporter registers into, created when nil

	Endpoint     string        // OTLP/gRPC endpoint; metrics are also pushed when set
	Insecure     bool          // Disable TLS for the OTLP connection
	WriteKey     string        // Honeycomb team key header
	Dataset      string        // Honeycomb dataset header
	PushInterval time.Duration // OTLP push interval (default: 60s)
}

// Provider manages OpenTelemetry metrics provider with Prometheus export.
// The provider must be shut down when no longer needed.
type Provider struct {
	impl *internal.Provider
}

// NewProvider creates a new metrics provider with Prometheus export.
//
// Parameters:
//   - ctx: context for provider initialization
//   - opts: provider configuration options
//
// Returns:
//   - *Provider: initialized provider instance
//   - error: initialization error if any
func NewProvider(ctx context.Context, opts Options) (*Provider, error) {
	impl, err := internal.NewProvider(ctx, internal.ProviderOptions{
		ServiceName:    opts.ServiceName,
		ServiceVersion: opts.ServiceVersion,
		InstanceID:     opts.InstanceID,
		ResourceAttrs:  opts.ResourceAttrs,
		Registry:       opts.Registry,
		Endpoint:       opts.Endpoint,
		Insecure:       opts.Insecure,
		WriteKey:       opts.WriteKey,
		Dataset:        opts.Dataset,
		PushInterval:   opts.PushInterval,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{impl: impl}, nil
}

// MeterProvider returns the OpenTelemetry meter provider.
func (p *Provider) MeterProvider() *metric.MeterProvider {
	return p.impl.MeterProvider
}

// Registry returns the Prometheus registry the exporter registered into.
func (p *Provider) Registry() *promclient.Registry {
	return p.impl.Registry
}

// PrometheusHandler returns an HTTP handler for the Prometheus metrics endpoint.
// It serves every collector in the registry, including metricx collectors sharing it.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", provider.PrometheusHandler())
func (p *Provider) PrometheusHandler() http.Handler {
	return p.impl.PrometheusHandler()
}

// Meter returns an OpenTelemetry Meter for creating custom metrics.
func (p *Provider) Meter(name string) api.Meter {
	return p.impl.MeterProvider.Meter(name)
}

// RegisterFieldSource exports a field snapshot, such as root span fields,
// as an observable gauge labelled by field key.
//
// Parameters:
//   - name: instrument name
//   - source: called on every scrape
//
// Returns:
//   - api.Registration: call Unregister to stop exporting
//   - error: registration error if any
//
// Concurrency:
//   - source runs on the scraping goroutine and must be safe for concurrent use
func (p *Provider) RegisterFieldSource(name string, source func() map[string]any) (api.Registration, error) {
	return internal.RegisterFieldSource(p.impl.MeterProvider, name, source)
}

// Shutdown gracefully shuts down the provider.
// It blocks until shutdown completes or a five second timeout elapses.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.impl.Shutdown(ctx)
}

// TracingOptions holds configuration for the tracer provider.
type TracingOptions = internal.TracingOptions

// NewTracerProvider creates an SDK tracer provider. Spans are exported over
// OTLP/gRPC when an endpoint is set, with Honeycomb headers when a write key or
// dataset is set. Root traces are kept 1 in SampleRate.
//
// Example:
//
//	tp, err := obsx.NewTracerProvider(ctx, obsx.TracingOptions{
//		ServiceName: "orders",
//		Endpoint:    "api.honeycomb.io:443",
//		WriteKey:    key,
//		Dataset:     "orders",
//		SampleRate:  10,
//	})
//	defer tp.Shutdown(ctx)
func NewTracerProvider(ctx context.Context, opts TracingOptions) (*sdktrace.TracerProvider, error) {
	return internal.NewTracerProvider(ctx, opts)
}

// Sampler returns the parent-based 1-in-rate sampler NewTracerProvider installs.
func Sampler(rate int) sdktrace.Sampler {
	return internal.Sampler(rate)
}
