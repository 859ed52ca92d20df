package metricx

import (
	"strings"

	"go.eggybyte.com/o11y/core/utils"
)

// SkipMetric is the metric name that disables instrumentation for a call.
const SkipMetric = "skip-this-metric"

// Metric is one of Gauge, *Meter or *Timer.
type Metric any

// Gauge is a lazily evaluated value source.
type Gauge interface {
	Value() any
}

// GaugeFunc adapts a function to the Gauge interface.
type GaugeFunc func() any

// Value calls f.
func (f GaugeFunc) Value() any { return f() }

// MetricSet is a group of metrics registered together under a common prefix.
type MetricSet interface {
	Metrics() map[string]Metric
}

// MetricMap is a ready MetricSet backed by a map.
type MetricMap map[string]Metric

// Metrics returns m.
func (m MetricMap) Metrics() map[string]Metric { return m }

// Name joins non-empty parts with ".".
func Name(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

// gaugeValue evaluates g as a float, recovering from panicking gauges.
func gaugeValue(g Gauge) (f float64) {
	defer func() {
		if recover() != nil {
			f = 0
		}
	}()
	v, ok := utils.ToFloat64(g.Value())
	if !ok {
		return 0
	}
	return v
}
