package interceptx

import (
	"context"
	"strings"
	"sync"

	"go.eggybyte.com/o11y/metricx"
)

// SkipMetric is the metric name that disables both interceptors for a call.
const SkipMetric = metricx.SkipMetric

// Method identifies an instrumented operation.
type Method struct {
	Class string
	Name  string
}

// Key returns "Class.Name", or Name alone when Class is empty.
func (m Method) Key() string {
	if m.Class == "" {
		return m.Name
	}
	return m.Class + "." + m.Name
}

// ParseProcedure splits a Connect or gRPC procedure such as
// "/acme.orders.v1.OrderService/GetOrder" into a Method.
func ParseProcedure(procedure string) Method {
	p := strings.TrimPrefix(procedure, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return Method{Class: p[:i], Name: p[i+1:]}
	}
	return Method{Name: p}
}

// Namer resolves the metric name of a method. An empty name disables instrumentation.
type Namer interface {
	MetricName(m Method) string
}

// NamerFunc adapts a function to Namer.
type NamerFunc func(m Method) string

// MetricName implements Namer.
func (f NamerFunc) MetricName(m Method) string { return f(m) }

// MethodNamer names every method by its Key.
func MethodNamer() Namer {
	return NamerFunc(func(m Method) string { return m.Key() })
}

// StaticNamer names every method with name.
func StaticNamer(name string) Namer {
	return NamerFunc(func(Method) string { return name })
}

// Call describes a single invocation passing through the interceptor chain.
type Call struct {
	Method Method
	Name   string

	mu     sync.Mutex
	suffix string
}

// NewCall creates a Call for method with the resolved metric name.
func NewCall(method Method, name string) *Call {
	return &Call{Method: method, Name: name}
}

// SetNameSuffix sets the suffix appended to the cumulative field name after the call returns.
func (c *Call) SetNameSuffix(s string) {
	c.mu.Lock()
	c.suffix = s
	c.mu.Unlock()
}

// NameSuffix returns the suffix set while the call ran.
func (c *Call) NameSuffix() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suffix
}

type callKey struct{}

// WithCall returns a context carrying call.
func WithCall(ctx context.Context, call *Call) context.Context {
	return context.WithValue(ctx, callKey{}, call)
}

// CallFromContext returns the innermost Call carried by ctx, or nil.
func CallFromContext(ctx context.Context) *Call {
	call, _ := ctx.Value(callKey{}).(*Call)
	return call
}

// SetNameSuffix sets the name suffix of the Call carried by ctx.
// It reports whether a Call was present.
func SetNameSuffix(ctx context.Context, suffix string) bool {
	call := CallFromContext(ctx)
	if call == nil {
		return false
	}
	call.SetNameSuffix(suffix)
	return true
}
