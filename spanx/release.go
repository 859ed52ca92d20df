package spanx

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanProcessor returns a processor that drops the per-span state of spans
// ended with span.End instead of EndSpan. New registers it on SDK tracer
// providers; register it yourself when tp wraps one.
func (m *Manager) SpanProcessor() sdktrace.SpanProcessor { return releaser{m: m} }

type releaser struct{ m *Manager }

func (releaser) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (r releaser) OnEnd(s sdktrace.ReadOnlySpan) {
	id := s.SpanContext().SpanID()
	r.m.cumulative.Delete(id)
	r.m.roots.Delete(id)
}

func (releaser) Shutdown(context.Context) error   { return nil }
func (releaser) ForceFlush(context.Context) error { return nil }

// tracked counts spans with live state.
func (m *Manager) tracked() int {
	n := 0
	count := func(any, any) bool { n++; return true }
	m.cumulative.Range(count)
	m.roots.Range(count)
	return n
}
