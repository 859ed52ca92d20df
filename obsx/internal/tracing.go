package internal

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Honeycomb request headers.
const (
	HeaderWriteKey = "x-honeycomb-team"
	HeaderDataset  = "x-honeycomb-dataset"
)

// TracingOptions holds configuration for the tracer provider.
type TracingOptions struct {
	ServiceName    string
	ServiceVersion string
	InstanceID     string
	ResourceAttrs  map[string]string

	Endpoint   string // OTLP/gRPC endpoint, host:port; no export when empty
	Insecure   bool
	WriteKey   string
	Dataset    string
	SampleRate int // Keep 1 in SampleRate traces; below 1 keeps none

	Exporter sdktrace.SpanExporter // Overrides the OTLP exporter when set
}

// NewTracerProvider creates an SDK tracer provider with a parent-based sampler.
func NewTracerProvider(ctx context.Context, opts TracingOptions) (*sdktrace.TracerProvider, error) {
	res, err := NewResource(ctx, ResourceOptions{
		ServiceName:    opts.ServiceName,
		ServiceVersion: opts.ServiceVersion,
		InstanceID:     opts.InstanceID,
		Attrs:          opts.ResourceAttrs,
	})
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(opts.SampleRate)),
	}

	exporter := opts.Exporter
	if exporter == nil && opts.Endpoint != "" {
		exporter, err = newOTLPExporter(ctx, opts)
		if err != nil {
			return nil, err
		}
	}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	return sdktrace.NewTracerProvider(tpOpts...), nil
}

// Sampler keeps one in rate root traces and follows the parent decision otherwise.
func Sampler(rate int) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate < 1:
		root = sdktrace.NeverSample()
	case rate == 1:
		root = sdktrace.AlwaysSample()
	default:
		root = sdktrace.TraceIDRatioBased(1 / float64(rate))
	}
	return sdktrace.ParentBased(root)
}

// OTLPHeaders returns the request headers sent with every export.
func OTLPHeaders(writeKey, dataset string) map[string]string {
	headers := make(map[string]string, 2)
	if writeKey != "" {
		headers[HeaderWriteKey] = writeKey
	}
	if dataset != "" {
		headers[HeaderDataset] = dataset
	}
	return headers
}

func newOTLPExporter(ctx context.Context, opts TracingOptions) (sdktrace.SpanExporter, error) {
	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
	}
	if opts.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if headers := OTLPHeaders(opts.WriteKey, opts.Dataset); len(headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(headers))
	}

	exporter, err := otlptracegrpc.New(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	return exporter, nil
}
