// Package interceptx records span fields around instrumented calls.
//
// Overview:
//   - Responsibility: End-value and cumulative-duration span field interceptors
//   - Key Types: Interceptor, Func, Call, Method, Options
//   - Concurrency Model: Interceptors are stateless and safe for concurrent use
//   - Error Semantics: The wrapped call's result, error and panic always propagate unchanged;
//     a failing field write is recovered and logged
//   - Performance Notes: Skipped calls cost one config read and no allocation beyond the Call
//
// Usage:
//
//	opts := interceptx.Options{Config: store, Spans: spans, Logger: logger}
//	load := interceptx.Instrument(interceptx.Method{Class: "OrderService", Name: "Load"},
//		interceptx.MethodNamer(), loadOrders,
//		interceptx.EndFieldInterceptor(opts), interceptx.CumulativeFieldInterceptor(opts))
//	orders, err := load(ctx)
package interceptx

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/metricx"
)

// Func is an instrumented call.
type Func func(ctx context.Context, call *Call) (any, error)

// Interceptor decorates a Func.
type Interceptor func(next Func) Func

// SpanManager writes fields onto spans.
type SpanManager interface {
	ActiveSpan(ctx context.Context) trace.Span
	AddEndField(span trace.Span, name string, value int64)
	AddCumulativeField(span trace.Span, name string, value int64)
}

// Configuration decides whether a call is instrumented.
type Configuration interface {
	IsEnabled() bool
	SampleRate(key string) int
}

// Options configures the interceptors.
type Options struct {
	Config Configuration    // Required
	Spans  SpanManager      // Required
	Logger log.Logger       // Optional, defaults to log.Nop()
	Now    func() time.Time // Optional, defaults to time.Now
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// EndFieldInterceptor attaches the wall-clock time in epoch milliseconds under
// the call's metric name before running it. The sample rate is looked up by Method.Key.
func EndFieldInterceptor(opts Options) Interceptor {
	opts = opts.withDefaults()
	return func(next Func) Func {
		return func(ctx context.Context, call *Call) (any, error) {
			name := call.Name
			opts.Logger.Debug("START: end field interceptor", log.Str("name", name))
			if !opts.Config.IsEnabled() {
				opts.Logger.Debug("SKIP: end field interceptor, instrumentation disabled", log.Str("name", name))
				return next(ctx, call)
			}
			if skipped(name) || opts.Config.SampleRate(call.Method.Key()) < 1 {
				opts.Logger.Debug("SKIP: end field interceptor, no name or not sampled", log.Str("name", name))
				return next(ctx, call)
			}

			if span := activeSpan(ctx, opts); span != nil {
				write(opts.Logger, name, func() {
					opts.Spans.AddEndField(span, name, opts.Now().UnixMilli())
				})
			}
			defer opts.Logger.Debug("END: end field interceptor", log.Str("name", name))
			return next(ctx, call)
		}
	}
}

// CumulativeFieldInterceptor adds the elapsed milliseconds of the call to a
// cumulative field on the active span. The field name is the metric name
// joined with the suffix set during the call. The sample rate is looked up by
// the metric name. The field is written even when the call fails or panics.
func CumulativeFieldInterceptor(opts Options) Interceptor {
	opts = opts.withDefaults()
	return func(next Func) Func {
		return func(ctx context.Context, call *Call) (any, error) {
			name := call.Name
			opts.Logger.Debug("START: cumulative field interceptor", log.Str("name", name))
			if !opts.Config.IsEnabled() {
				opts.Logger.Debug("SKIP: cumulative field interceptor, instrumentation disabled", log.Str("name", name))
				return next(ctx, call)
			}
			if skipped(name) || opts.Config.SampleRate(name) < 1 {
				opts.Logger.Debug("SKIP: cumulative field interceptor, no name or not sampled", log.Str("name", name))
				return next(ctx, call)
			}

			begin := opts.Now()
			span := activeSpan(ctx, opts)
			defer func() {
				field := name
				if span != nil {
					elapsed := opts.Now().Sub(begin).Milliseconds()
					field = metricx.Name(name, call.NameSuffix())
					write(opts.Logger, field, func() {
						opts.Spans.AddCumulativeField(span, field, elapsed)
					})
				}
				opts.Logger.Debug("END: cumulative field interceptor", log.Str("name", field))
			}()
			return next(ctx, call)
		}
	}
}

// Chain composes interceptors; the first one is outermost.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(next Func) Func {
		for i := len(interceptors) - 1; i >= 0; i-- {
			if interceptors[i] != nil {
				next = interceptors[i](next)
			}
		}
		return next
	}
}

// Instrument wraps op with interceptors. The metric name is resolved once, here.
func Instrument[T any](method Method, namer Namer, op func(context.Context) (T, error), interceptors ...Interceptor) func(context.Context) (T, error) {
	name := ""
	if namer != nil {
		name = namer.MetricName(method)
	}
	chain := Chain(interceptors...)(func(ctx context.Context, _ *Call) (any, error) {
		return op(ctx)
	})
	return func(ctx context.Context) (T, error) {
		call := NewCall(method, name)
		out, err := chain(WithCall(ctx, call), call)
		v, _ := out.(T)
		return v, err
	}
}

func skipped(name string) bool {
	return name == "" || name == SkipMetric
}

func activeSpan(ctx context.Context, opts Options) (span trace.Span) {
	defer func() {
		if r := recover(); r != nil {
			opts.Logger.Error(fmt.Errorf("panic: %v", r), "active span lookup failed")
			span = nil
		}
	}()
	return opts.Spans.ActiveSpan(ctx)
}

func write(logger log.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("panic: %v", r), "span field write failed", log.Str("name", name))
		}
	}()
	fn()
}
