package rootspanx

import (
	"strings"

	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/metricx"
)

// Instrumentation supplies runtime gauge sets.
type Instrumentation interface {
	MemoryUsageGaugeSet() metricx.MetricSet
	ThreadStatesGaugeSet() metricx.MetricSet
}

// RuntimeFields reports memory and thread gauges of the process.
// Memory keys containing "pool" are dropped; thread keys are kept only when
// they end with "count".
type RuntimeFields struct {
	inst   Instrumentation
	logger log.Logger
}

// NewRuntimeFields creates a RuntimeFields over inst.
// A nil inst reports the Go runtime.
func NewRuntimeFields(inst Instrumentation, logger log.Logger) *RuntimeFields {
	if inst == nil {
		inst = NewGoRuntime()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &RuntimeFields{inst: inst, logger: logger}
}

// Fields returns jvm.memory.<key> and jvm.threads.<key> entries.
// A gauge set that cannot be read is logged and skipped.
func (f *RuntimeFields) Fields() map[string]any {
	out := make(map[string]any)
	f.add(out, "jvm.memory", f.inst.MemoryUsageGaugeSet, func(k string) bool {
		return !strings.Contains(k, "pool")
	})
	f.add(out, "jvm.threads", f.inst.ThreadStatesGaugeSet, func(k string) bool {
		return strings.HasSuffix(k, "count")
	})
	return out
}

func (f *RuntimeFields) add(out map[string]any, prefix string, gaugeSet func() metricx.MetricSet, keep func(string) bool) {
	metrics, ok := fetch(f.logger, "failed to read runtime gauge set", prefix, func() map[string]metricx.Metric {
		if set := gaugeSet(); set != nil {
			return set.Metrics()
		}
		return nil
	})
	if !ok {
		return
	}
	for k, m := range metrics {
		if !keep(k) {
			continue
		}
		g, ok := m.(metricx.Gauge)
		if !ok {
			continue
		}
		key := prefix + "." + k
		if v, ok := read(f.logger, key, g.Value); ok {
			out[key] = v
		}
	}
}
