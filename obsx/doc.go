// Package obsx constructs the OpenTelemetry providers o11y exports through.
//
// # Overview
//
// The metrics Provider wraps an SDK MeterProvider whose only reader is the
// Prometheus exporter. The exporter registers into a caller supplied
// *prometheus.Registry, so the same /metrics endpoint also serves the
// collectors metricx registers. NewTracerProvider builds the SDK tracer
// provider spanx starts spans on.
//
// # Features
//
//   - Meter provider with Prometheus export only (no remote push)
//   - Field sources: root span fields exported as one gauge per source
//   - OTLP/gRPC trace export with Honeycomb team and dataset headers
//   - Parent-based 1-in-N trace sampling
//   - Graceful shutdown with bounded timeouts
//
// # Usage
//
//	registry := prometheus.NewRegistry()
//	provider, err := obsx.NewProvider(ctx, obsx.Options{
//		ServiceName: "orders",
//		Registry:    registry,
//	})
//	if err != nil { return err }
//	defer provider.Shutdown(ctx)
//
//	http.Handle("/metrics", provider.PrometheusHandler())
package obsx
