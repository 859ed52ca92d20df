package metricx

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"go.eggybyte.com/o11y/core/log"
)

// Registry is the metric registry facade.
// It keeps an explicit directory of registered metrics and forwards every
// registration to the Engine.
type Registry struct {
	engine  *Engine
	health  *HealthRegistry
	logger  log.Logger
	metrics sync.Map // map[string]Metric
}

// NewRegistry creates a Registry exporting into reg.
//
// Parameters:
//   - reg: Prometheus registerer (nil creates a private registry)
//   - logger: logger for engine problems (nil discards)
//
// Returns:
//   - *Registry: ready registry
func NewRegistry(reg prometheus.Registerer, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	return &Registry{
		engine: NewEngine(reg, logger),
		health: NewHealthRegistry(logger),
		logger: logger,
	}
}

// Register stores metric under name, overwriting any previous entry, and
// returns the same metric. A nil metric is ignored.
func (r *Registry) Register(name string, metric Metric) Metric {
	if metric == nil {
		r.logger.Warn("ignoring nil metric", log.Str("name", name))
		return nil
	}
	r.metrics.Store(name, metric)
	r.engine.Register(name, metric)
	return metric
}

// RegisterSet registers every metric of set under Name(name, key).
func (r *Registry) RegisterSet(name string, set MetricSet) {
	if set == nil {
		return
	}
	for key, metric := range set.Metrics() {
		r.Register(Name(name, key), metric)
	}
}

// Metrics returns a snapshot copy of the directory.
func (r *Registry) Metrics() map[string]Metric {
	out := make(map[string]Metric)
	r.metrics.Range(func(k, v any) bool {
		out[k.(string)] = v
		return true
	})
	return out
}

// RegisterHealthCheck adds check to the health registry under name.
func (r *Registry) RegisterHealthCheck(name string, check HealthCheck) {
	r.health.Register(name, check)
}

// Meter returns the engine meter for name. It is not added to the directory.
func (r *Registry) Meter(name string) *Meter { return r.engine.Meter(name) }

// Timer returns the engine timer for name. It is not added to the directory.
func (r *Registry) Timer(name string) *Timer { return r.engine.Timer(name) }

// Gauge registers g in the engine only and returns it.
func (r *Registry) Gauge(name string, g Gauge) Gauge { return r.engine.Gauge(name, g) }

// HealthChecks returns the health registry.
func (r *Registry) HealthChecks() *HealthRegistry { return r.health }

// Engine returns the Prometheus engine.
func (r *Registry) Engine() *Engine { return r.engine }
