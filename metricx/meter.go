package metricx

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"go.eggybyte.com/o11y/metricx/internal"
)

// Meter counts events and reports their mean rate.
type Meter struct {
	name    string
	start   time.Time
	count   atomic.Int64
	counter prometheus.Counter
}

// NewMeter creates a Meter exported as the counter <name>_total.
func NewMeter(name string) *Meter {
	return &Meter{
		name:  name,
		start: time.Now(),
		counter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: internal.PromName(name) + "_total",
			Help: "Events marked on " + internal.PromName(name) + ".",
		}),
	}
}

// Name returns the dotted metric name.
func (m *Meter) Name() string { return m.name }

// Mark records n events. Negative n is ignored.
func (m *Meter) Mark(n int64) {
	if n < 0 {
		return
	}
	m.count.Add(n)
	m.counter.Add(float64(n))
}

// Count returns the number of events marked.
func (m *Meter) Count() int64 { return m.count.Load() }

// MeanRate returns events per second since the meter was created.
func (m *Meter) MeanRate() float64 {
	elapsed := time.Since(m.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.count.Load()) / elapsed
}

// Collector returns the Prometheus collector backing the meter.
func (m *Meter) Collector() prometheus.Collector { return m.counter }

// Timer records durations into a histogram.
type Timer struct {
	name     string
	count    atomic.Int64
	sumNanos atomic.Int64
	maxNanos atomic.Int64
	hist     prometheus.Histogram
}

// NewTimer creates a Timer exported as the histogram <name>_seconds.
func NewTimer(name string) *Timer {
	return &Timer{
		name: name,
		hist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    internal.PromName(name) + "_seconds",
			Help:    "Durations recorded on " + internal.PromName(name) + ".",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Name returns the dotted metric name.
func (t *Timer) Name() string { return t.name }

// Update records one duration. Negative durations count as zero.
func (t *Timer) Update(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.hist.Observe(d.Seconds())
	t.count.Add(1)
	t.sumNanos.Add(int64(d))
	for {
		cur := t.maxNanos.Load()
		if int64(d) <= cur || t.maxNanos.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

// Time starts a measurement.
func (t *Timer) Time() *TimerContext {
	return &TimerContext{timer: t, start: time.Now()}
}

// Count returns the number of recorded durations.
func (t *Timer) Count() int64 { return t.count.Load() }

// Mean returns the mean recorded duration.
func (t *Timer) Mean() time.Duration {
	n := t.count.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(t.sumNanos.Load() / n)
}

// Max returns the longest recorded duration.
func (t *Timer) Max() time.Duration { return time.Duration(t.maxNanos.Load()) }

// Collector returns the Prometheus collector backing the timer.
func (t *Timer) Collector() prometheus.Collector { return t.hist }

// TimerContext is one running measurement of a Timer.
type TimerContext struct {
	timer   *Timer
	start   time.Time
	once    sync.Once
	elapsed time.Duration
}

// Stop records the elapsed time on the first call and returns it on every call.
func (c *TimerContext) Stop() time.Duration {
	c.once.Do(func() {
		c.elapsed = time.Since(c.start)
		c.timer.Update(c.elapsed)
	})
	return c.elapsed
}
