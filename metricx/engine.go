package metricx

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/metricx/internal"
)

// Engine owns the Prometheus side of the registry.
// Each dotted name maps to at most one collector; registering a name again
// unregisters the previous collector first.
type Engine struct {
	reg    prometheus.Registerer
	logger log.Logger

	meters sync.Map // map[string]*Meter
	timers sync.Map // map[string]*Timer

	mu         sync.Mutex
	collectors map[string]prometheus.Collector
}

// NewEngine creates an Engine registering into reg.
// A nil reg gets a fresh prometheus.Registry.
func NewEngine(reg prometheus.Registerer, logger log.Logger) *Engine {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		reg:        reg,
		logger:     logger,
		collectors: make(map[string]prometheus.Collector),
	}
}

// Registerer returns the Prometheus registerer the engine writes to.
func (e *Engine) Registerer() prometheus.Registerer { return e.reg }

// Meter returns the meter registered under name, creating it on first use.
func (e *Engine) Meter(name string) *Meter {
	if v, ok := e.meters.Load(name); ok {
		return v.(*Meter)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.meters.Load(name); ok {
		return v.(*Meter)
	}
	m := NewMeter(name)
	e.registerLocked(name, m.Collector())
	e.meters.Store(name, m)
	return m
}

// Timer returns the timer registered under name, creating it on first use.
func (e *Engine) Timer(name string) *Timer {
	if v, ok := e.timers.Load(name); ok {
		return v.(*Timer)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.timers.Load(name); ok {
		return v.(*Timer)
	}
	t := NewTimer(name)
	e.registerLocked(name, t.Collector())
	e.timers.Store(name, t)
	return t
}

// Gauge registers g under name and returns it.
func (e *Engine) Gauge(name string, g Gauge) Gauge {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerLocked(name, newGaugeCollector(name, g))
	return g
}

// Register forwards metric to Prometheus according to its capability.
// Unsupported metric types are logged and ignored.
func (e *Engine) Register(name string, metric Metric) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch m := metric.(type) {
	case *Meter:
		e.registerLocked(name, m.Collector())
		e.meters.Store(name, m)
	case *Timer:
		e.registerLocked(name, m.Collector())
		e.timers.Store(name, m)
	case Gauge:
		e.registerLocked(name, newGaugeCollector(name, m))
	default:
		e.logger.Warn("unsupported metric type, not exported",
			log.Str("name", name), log.Str("type", fmt.Sprintf("%T", metric)))
	}
}

// Unregister removes the collector registered under name.
func (e *Engine) Unregister(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unregisterLocked(name)
}

func (e *Engine) unregisterLocked(name string) bool {
	old, ok := e.collectors[name]
	if !ok {
		return false
	}
	e.reg.Unregister(old)
	delete(e.collectors, name)
	e.meters.Delete(name)
	e.timers.Delete(name)
	return true
}

func (e *Engine) registerLocked(name string, c prometheus.Collector) {
	e.unregisterLocked(name)
	if err := e.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			e.logger.Warn("metric name clashes with an existing collector",
				log.Str("name", name), log.Str("prometheus_name", internal.PromName(name)))
		} else {
			e.logger.Error(err, "metric registration failed", log.Str("name", name))
		}
		return
	}
	e.collectors[name] = c
}

func newGaugeCollector(name string, g Gauge) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: internal.PromName(name),
		Help: "Gauge " + internal.PromName(name) + ".",
	}, func() float64 { return gaugeValue(g) })
}
