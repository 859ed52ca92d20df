// Package spanx attaches instrumentation fields to OpenTelemetry spans.
//
// Overview:
//   - Responsibility: Active span lookup, end-value and cumulative fields, root span lifecycle
//   - Key Types: Manager, Options
//   - Concurrency Model: Manager is safe for concurrent use; per-span state is keyed by span id
//   - Lifecycle: Per-span state is released by EndSpan or, for span.End, by SpanProcessor
//   - Error Semantics: Field writes on nil or non-recording spans are no-ops
//   - Performance Notes: Root span fields are collected once, when the root span ends
//
// Usage:
//
//	spans := spanx.New(tracerProvider, spanx.Options{Providers: []rootspanx.Provider{pools, runtime}})
//	ctx, root := spans.StartRootSpan(ctx, "GET /orders")
//	defer spans.EndSpan(root)
//	spans.AddCumulativeField(spans.ActiveSpan(ctx), "db.query", 12)
package spanx

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/rootspanx"
)

// DefaultTracerName is the instrumentation scope used when Options.TracerName is empty.
const DefaultTracerName = "go.eggybyte.com/o11y/spanx"

// Options configures a Manager.
type Options struct {
	Providers  []rootspanx.Provider // Root span field providers, merged in order
	Logger     log.Logger           // Logger for provider failures
	TracerName string               // Instrumentation scope name
}

// Manager attaches fields to spans created by a TracerProvider.
type Manager struct {
	tracer    trace.Tracer
	providers []rootspanx.Provider
	logger    log.Logger

	roots      sync.Map // map[trace.SpanID]struct{}
	cumulative sync.Map // map[trace.SpanID]*cumulativeState
}

type cumulativeState struct {
	mu     sync.Mutex
	totals map[string]int64
	counts map[string]int64
}

// New creates a Manager. A nil tp uses a no-op provider. On an SDK provider
// New registers SpanProcessor so spans ended directly release their state.
func New(tp trace.TracerProvider, opts Options) *Manager {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.TracerName == "" {
		opts.TracerName = DefaultTracerName
	}
	m := &Manager{
		tracer:    tp.Tracer(opts.TracerName),
		providers: opts.Providers,
		logger:    opts.Logger,
	}
	if sdk, ok := tp.(*sdktrace.TracerProvider); ok {
		sdk.RegisterSpanProcessor(m.SpanProcessor())
	}
	return m
}

// Tracer returns the tracer spans are started with.
func (m *Manager) Tracer() trace.Tracer { return m.tracer }

// ActiveSpan returns the recording span carried by ctx, or nil.
func (m *Manager) ActiveSpan(ctx context.Context) trace.Span {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() || !span.IsRecording() {
		return nil
	}
	return span
}

// AddEndField sets name to value on span.
func (m *Manager) AddEndField(span trace.Span, name string, value int64) {
	if !recording(span) {
		return
	}
	span.SetAttributes(Attribute(name, value))
}

// AddCumulativeField adds value to the running total of name on span and
// maintains name.count as the number of additions.
func (m *Manager) AddCumulativeField(span trace.Span, name string, value int64) {
	if !recording(span) {
		return
	}
	id := span.SpanContext().SpanID()
	v, _ := m.cumulative.LoadOrStore(id, &cumulativeState{
		totals: make(map[string]int64),
		counts: make(map[string]int64),
	})
	st := v.(*cumulativeState)

	// Held across SetAttributes so the span never goes back to an older total.
	st.mu.Lock()
	defer st.mu.Unlock()
	st.totals[name] += value
	st.counts[name]++
	span.SetAttributes(Attribute(name, st.totals[name]), Attribute(name+".count", st.counts[name]))
}

// Cumulative returns the running totals recorded on span.
func (m *Manager) Cumulative(span trace.Span) map[string]int64 {
	out := make(map[string]int64)
	if span == nil {
		return out
	}
	v, ok := m.cumulative.Load(span.SpanContext().SpanID())
	if !ok {
		return out
	}
	st := v.(*cumulativeState)
	st.mu.Lock()
	defer st.mu.Unlock()
	for k, total := range st.totals {
		out[k] = total
	}
	return out
}

// StartRootSpan starts a span with no parent. EndSpan merges the root span fields into it.
func (m *Manager) StartRootSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append(opts, trace.WithNewRoot())
	ctx, span := m.tracer.Start(ctx, name, opts...)
	if span.SpanContext().IsValid() {
		m.roots.Store(span.SpanContext().SpanID(), struct{}{})
	}
	return ctx, span
}

// StartSpan starts a child of the span carried by ctx.
func (m *Manager) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, opts...)
}

// EndSpan ends span and releases its state. Root spans first receive RootFields.
func (m *Manager) EndSpan(span trace.Span, opts ...trace.SpanEndOption) {
	if span == nil {
		return
	}
	id := span.SpanContext().SpanID()
	if _, root := m.roots.LoadAndDelete(id); root && span.IsRecording() {
		span.SetAttributes(Attributes(m.RootFields())...)
	}
	m.cumulative.Delete(id)
	span.End(opts...)
}

// RootFields merges the fields of every provider.
func (m *Manager) RootFields() map[string]any {
	return rootspanx.Collect(m.logger, m.providers...)
}

func recording(span trace.Span) bool {
	return span != nil && span.IsRecording()
}
