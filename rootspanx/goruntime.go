package rootspanx

import (
	"runtime"
	"runtime/pprof"
	"sync"

	"go.eggybyte.com/o11y/metricx"
)

// GoRuntime is the default Instrumentation, reading the Go runtime.
// Each MemoryUsageGaugeSet call reads runtime.MemStats at most once,
// when the first of its gauges is evaluated.
type GoRuntime struct{}

var _ Instrumentation = GoRuntime{}

// NewGoRuntime returns the Go runtime instrumentation.
func NewGoRuntime() GoRuntime { return GoRuntime{} }

type memSnapshot struct {
	once sync.Once
	ms   runtime.MemStats
}

func (s *memSnapshot) get() *runtime.MemStats {
	s.once.Do(func() { runtime.ReadMemStats(&s.ms) })
	return &s.ms
}

func memGauge(s *memSnapshot, fn func(*runtime.MemStats) uint64) metricx.Gauge {
	return metricx.GaugeFunc(func() any { return int64(fn(s.get())) })
}

// MemoryUsageGaugeSet returns heap, non-heap and per-pool memory gauges in bytes.
func (GoRuntime) MemoryUsageGaugeSet() metricx.MetricSet {
	s := &memSnapshot{}
	nonHeap := func(m *runtime.MemStats) uint64 {
		return m.StackInuse + m.MSpanInuse + m.MCacheInuse + m.GCSys + m.OtherSys + m.BuckHashSys
	}
	return metricx.MetricMap{
		"heap.used":         memGauge(s, func(m *runtime.MemStats) uint64 { return m.HeapAlloc }),
		"heap.committed":    memGauge(s, func(m *runtime.MemStats) uint64 { return m.HeapSys }),
		"heap.objects":      memGauge(s, func(m *runtime.MemStats) uint64 { return m.HeapObjects }),
		"non-heap.used":     memGauge(s, nonHeap),
		"total.used":        memGauge(s, func(m *runtime.MemStats) uint64 { return m.HeapAlloc + nonHeap(m) }),
		"total.committed":   memGauge(s, func(m *runtime.MemStats) uint64 { return m.Sys }),
		"pools.stack.used":  memGauge(s, func(m *runtime.MemStats) uint64 { return m.StackInuse }),
		"pools.mspan.used":  memGauge(s, func(m *runtime.MemStats) uint64 { return m.MSpanInuse }),
		"pools.mcache.used": memGauge(s, func(m *runtime.MemStats) uint64 { return m.MCacheInuse }),
		"pools.gc.used":     memGauge(s, func(m *runtime.MemStats) uint64 { return m.GCSys }),
	}
}

// ThreadStatesGaugeSet returns goroutine and OS thread gauges.
func (GoRuntime) ThreadStatesGaugeSet() metricx.MetricSet {
	return metricx.MetricMap{
		"count": metricx.GaugeFunc(func() any { return int64(runtime.NumGoroutine()) }),
		"threads.count": metricx.GaugeFunc(func() any {
			if p := pprof.Lookup("threadcreate"); p != nil {
				return int64(p.Count())
			}
			return int64(0)
		}),
		"gomaxprocs.count": metricx.GaugeFunc(func() any { return int64(runtime.GOMAXPROCS(0)) }),
		"cgo.calls":        metricx.GaugeFunc(func() any { return runtime.NumCgoCall() }),
	}
}
