package metricx

import (
	"context"
	stderrors "errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.eggybyte.com/o11y/core/errors"
	"go.eggybyte.com/o11y/core/log"
)

// Config is the configuration read by Manager.
type Config interface {
	IsEnabled() bool
	MeterRatio() int
	NodePrefix() string
}

// Manager drives per-request metering on top of a Registry.
// Request state lives in a scope carried by the context; see WithScope.
type Manager struct {
	registry *Registry
	cfg      Config
	logger   log.Logger
	sampled  atomic.Uint64
}

// NewManager creates a Manager over registry.
func NewManager(registry *Registry, cfg Config, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.Nop()
	}
	return &Manager{registry: registry, cfg: cfg, logger: logger}
}

type scopeKey struct{}

type scope struct {
	mu         sync.Mutex
	timers     map[string]*TimerContext
	cumulative map[string]float64
	decided    bool
	metered    bool
}

// WithScope returns ctx carrying a fresh request scope.
// A context that already carries a scope is returned unchanged.
func WithScope(ctx context.Context) context.Context {
	if scopeFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, &scope{
		timers:     make(map[string]*TimerContext),
		cumulative: make(map[string]float64),
	})
}

func scopeFrom(ctx context.Context) *scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Engine returns the registry's Prometheus engine.
func (m *Manager) Engine() *Engine { return m.registry.Engine() }

// HealthChecks returns the registry's health checks.
func (m *Manager) HealthChecks() *HealthRegistry { return m.registry.HealthChecks() }

// Config returns the manager configuration.
func (m *Manager) Config() Config { return m.cfg }

// StartTimer starts the timer name and remembers it in the request scope.
func (m *Manager) StartTimer(ctx context.Context, name string) *TimerContext {
	tc := m.registry.Timer(name).Time()
	if s := scopeFrom(ctx); s != nil {
		s.mu.Lock()
		s.timers[name] = tc
		s.mu.Unlock()
	}
	return tc
}

// StopTimer stops the timer started under name in the request scope.
// It returns -1 when no such timer is running.
func (m *Manager) StopTimer(ctx context.Context, name string) time.Duration {
	s := scopeFrom(ctx)
	if s == nil {
		return -1
	}
	s.mu.Lock()
	tc, ok := s.timers[name]
	delete(s.timers, name)
	s.mu.Unlock()
	if !ok {
		return -1
	}
	return tc.Stop()
}

// StopTimers stops every timer in timers.
func (m *Manager) StopTimers(timers map[string]*TimerContext) {
	for _, tc := range timers {
		if tc != nil {
			tc.Stop()
		}
	}
}

// Meter returns the meter name.
func (m *Manager) Meter(name string) *Meter { return m.registry.Meter(name) }

// Mark marks one event on each named meter.
func (m *Manager) Mark(names ...string) {
	for _, name := range names {
		m.registry.Meter(name).Mark(1)
	}
}

// Accumulate adds elapsed milliseconds to the running total for name in the request scope.
func (m *Manager) Accumulate(ctx context.Context, name string, elapsed float64) {
	s := scopeFrom(ctx)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.cumulative[name] += elapsed
	s.mu.Unlock()
}

// Cumulative returns a copy of the accumulated timings in the request scope.
func (m *Manager) Cumulative(ctx context.Context) map[string]float64 {
	out := make(map[string]float64)
	s := scopeFrom(ctx)
	if s == nil {
		return out
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.cumulative {
		out[k] = v
	}
	return out
}

// AddGauges registers each gauge under Name(class, method, key).
func (m *Manager) AddGauges(class, method string, gauges map[string]Gauge) {
	for key, g := range gauges {
		m.registry.Register(Name(class, method, key), g)
	}
}

// IsMetered reports whether the current request is metered.
// A non-nil override returning true forces metering while enabled.
func (m *Manager) IsMetered(ctx context.Context, override func() bool) bool {
	if !m.cfg.IsEnabled() {
		return false
	}
	if override != nil && override() {
		return true
	}
	return m.CheckMetered(ctx)
}

// CheckMetered makes the 1-in-MeterRatio sampling decision.
// The decision is taken once per request scope and reused afterwards.
func (m *Manager) CheckMetered(ctx context.Context) bool {
	if !m.cfg.IsEnabled() {
		return false
	}
	s := scopeFrom(ctx)
	if s == nil {
		return m.decide()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.decided {
		s.metered = m.decide()
		s.decided = true
	}
	return s.metered
}

func (m *Manager) decide() bool {
	ratio := m.cfg.MeterRatio()
	if ratio <= 1 {
		return true
	}
	return (m.sampled.Add(1)-1)%uint64(ratio) == 0
}

// WrapWithStandardMetrics runs fn under the standard metric set. See Wrap.
func (m *Manager) WrapWithStandardMetrics(ctx context.Context, fn func(context.Context) (any, error), classifier func() string) (any, error) {
	return Wrap(ctx, m, fn, classifier)
}

// Wrap runs fn and records the standard metrics for the name returned by classifier.
//
// For metric name n = Name(NodePrefix, classifier()):
//   - <n>.starts is marked before fn runs
//   - <n>.timer measures fn
//   - <n>.exception and <n>.exception.<Kind> are marked when fn fails
//   - <n>.meter is marked and elapsed ms accumulated under n once fn returns
//
// Nothing is recorded when the request is not metered or the name is empty or SkipMetric.
// The result and error of fn are returned unchanged.
func Wrap[T any](ctx context.Context, m *Manager, fn func(context.Context) (T, error), classifier func() string) (T, error) {
	name := ""
	if classifier != nil {
		name = classifier()
	}
	if name == "" || name == SkipMetric || !m.IsMetered(ctx, nil) {
		return fn(ctx)
	}

	n := Name(m.cfg.NodePrefix(), name)
	m.Mark(Name(n, "starts"))
	tc := m.registry.Timer(Name(n, "timer")).Time()

	defer func() {
		elapsed := tc.Stop()
		m.Accumulate(ctx, n, float64(elapsed)/float64(time.Millisecond))
		m.Mark(Name(n, "meter"))
	}()
	defer func() {
		if r := recover(); r != nil {
			m.Mark(Name(n, "exception"), Name(n, "exception", "panic"))
			panic(r)
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		m.Mark(Name(n, "exception"), Name(n, "exception", ErrorKind(err)))
	}
	return v, err
}

// ErrorKind names the class of err for exception meters.
// Structured errors report their code; others the type name of the root cause.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if code := errors.CodeOf(err); code != "" {
		return string(code)
	}
	root := err
	for {
		next := stderrors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	t := reflect.TypeOf(root)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "error"
	}
	return t.Name()
}
