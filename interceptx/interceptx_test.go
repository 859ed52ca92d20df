package interceptx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"go.eggybyte.com/o11y/logx"
)

type stubConfig struct {
	disabled bool
	rates    map[string]int
	fallback int
}

func (c stubConfig) IsEnabled() bool { return !c.disabled }

func (c stubConfig) SampleRate(key string) int {
	if r, ok := c.rates[key]; ok {
		return r
	}
	return c.fallback
}

type field struct {
	name  string
	value int64
}

type recordingSpans struct {
	mu         sync.Mutex
	noSpan     bool
	panicWrite bool
	ends       []field
	cumulative []field
}

func (r *recordingSpans) ActiveSpan(ctx context.Context) trace.Span {
	if r.noSpan {
		return nil
	}
	return trace.SpanFromContext(ctx)
}

func (r *recordingSpans) AddEndField(_ trace.Span, name string, value int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, field{name, value})
}

func (r *recordingSpans) AddCumulativeField(_ trace.Span, name string, value int64) {
	if r.panicWrite {
		panic("collector gone")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cumulative = append(r.cumulative, field{name, value})
}

func (r *recordingSpans) recorded() (ends, cumulative []field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]field(nil), r.ends...), append([]field(nil), r.cumulative...)
}

func (r *recordingSpans) writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ends) + len(r.cumulative)
}

func clock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[min(i, len(times)-1)]
		i++
		return t
	}
}

var (
	loadMethod = Method{Class: "OrderService", Name: "Load"}
	t0         = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func TestEndFieldDisabled(t *testing.T) {
	spans := &recordingSpans{}
	opts := Options{Config: stubConfig{disabled: true, fallback: 1}, Spans: spans}

	load := Instrument(loadMethod, StaticNamer("orders.load"), func(context.Context) (string, error) {
		return "order-1", nil
	}, EndFieldInterceptor(opts))

	got, err := load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "order-1", got)
	assert.Zero(t, spans.writes())
}

func TestEndFieldWritesTimestamp(t *testing.T) {
	spans := &recordingSpans{}
	opts := Options{
		Config: stubConfig{rates: map[string]int{"OrderService.Load": 1}},
		Spans:  spans,
		Now:    clock(t0),
	}

	calls := 0
	load := Instrument(loadMethod, StaticNamer("orders.load"), func(context.Context) (int, error) {
		calls++
		assert.Len(t, spans.ends, 1, "field is written before the call")
		return 42, nil
	}, EndFieldInterceptor(opts))

	got, err := load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []field{{"orders.load", t0.UnixMilli()}}, spans.ends)
}

func TestEndFieldLogsEndAfterCall(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logx.New(logx.WithCore(core))
	opts := Options{Config: stubConfig{fallback: 1}, Spans: &recordingSpans{}, Logger: logger}

	load := Instrument(loadMethod, StaticNamer("orders.load"), func(context.Context) (int, error) {
		logger.Info("loading order")
		return 1, nil
	}, EndFieldInterceptor(opts))

	_, err := load(context.Background())
	require.NoError(t, err)

	var messages []string
	for _, e := range logs.All() {
		messages = append(messages, e.Message)
	}
	assert.Equal(t, []string{
		"START: end field interceptor",
		"loading order",
		"END: end field interceptor",
	}, messages)
}

func TestConcurrentInstrumentedCalls(t *testing.T) {
	spans := &recordingSpans{}
	opts := Options{Config: stubConfig{fallback: 1}, Spans: spans}

	load := Instrument(loadMethod, StaticNamer("orders.load"), func(ctx context.Context) (int, error) {
		SetNameSuffix(ctx, "hit")
		return 1, nil
	}, EndFieldInterceptor(opts), CumulativeFieldInterceptor(opts))

	const workers, calls = 8, 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				_, err := load(context.Background())
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	ends, cumulative := spans.recorded()
	assert.Len(t, ends, workers*calls)
	assert.Len(t, cumulative, workers*calls)
	for _, f := range cumulative {
		assert.Equal(t, "orders.load.hit", f.name)
	}
}

func TestSampleRateKeys(t *testing.T) {
	byName := stubConfig{rates: map[string]int{"orders.load": 1}}
	byMethod := stubConfig{rates: map[string]int{"OrderService.Load": 1}}

	tests := []struct {
		name        string
		config      stubConfig
		interceptor func(Options) Interceptor
		wantWrites  int
	}{
		{"end by method", byMethod, EndFieldInterceptor, 1},
		{"end ignores name rate", byName, EndFieldInterceptor, 0},
		{"cumulative by name", byName, CumulativeFieldInterceptor, 1},
		{"cumulative ignores method rate", byMethod, CumulativeFieldInterceptor, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := &recordingSpans{}
			op := Instrument(loadMethod, StaticNamer("orders.load"), func(context.Context) (bool, error) {
				return true, nil
			}, tt.interceptor(Options{Config: tt.config, Spans: spans}))

			got, err := op(context.Background())
			require.NoError(t, err)
			assert.True(t, got)
			assert.Equal(t, tt.wantWrites, spans.writes())
		})
	}
}

func TestSkippedNames(t *testing.T) {
	for _, name := range []string{"", SkipMetric} {
		spans := &recordingSpans{}
		opts := Options{Config: stubConfig{fallback: 1}, Spans: spans}

		op := Instrument(loadMethod, StaticNamer(name), func(context.Context) (int, error) {
			return 1, nil
		}, EndFieldInterceptor(opts), CumulativeFieldInterceptor(opts))

		got, err := op(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, got)
		assert.Zero(t, spans.writes(), "name %q", name)
	}
}

func TestCumulativeFieldWrittenOnceOnError(t *testing.T) {
	spans := &recordingSpans{}
	opts := Options{
		Config: stubConfig{fallback: 1},
		Spans:  spans,
		Now:    clock(t0, t0.Add(25*time.Millisecond)),
	}
	boom := errors.New("boom")

	op := Instrument(loadMethod, StaticNamer("orders.load"), func(context.Context) (int, error) {
		return 0, boom
	}, CumulativeFieldInterceptor(opts))

	_, err := op(context.Background())
	assert.Same(t, boom, err)
	assert.Equal(t, []field{{"orders.load", 25}}, spans.cumulative)
}

func TestCumulativeFieldWrittenOnPanic(t *testing.T) {
	spans := &recordingSpans{}
	opts := Options{Config: stubConfig{fallback: 1}, Spans: spans}

	op := Instrument(loadMethod, StaticNamer("orders.load"), func(context.Context) (int, error) {
		panic("kaput")
	}, CumulativeFieldInterceptor(opts))

	assert.PanicsWithValue(t, "kaput", func() { _, _ = op(context.Background()) })
	require.Len(t, spans.cumulative, 1)
	assert.Equal(t, "orders.load", spans.cumulative[0].name)
}

func TestCumulativeFieldSuffix(t *testing.T) {
	spans := &recordingSpans{}
	opts := Options{Config: stubConfig{fallback: 1}, Spans: spans}

	op := Instrument(loadMethod, StaticNamer("cache.get"), func(ctx context.Context) (string, error) {
		assert.True(t, SetNameSuffix(ctx, "hit"))
		return "v", nil
	}, CumulativeFieldInterceptor(opts))

	_, err := op(context.Background())
	require.NoError(t, err)
	require.Len(t, spans.cumulative, 1)
	assert.Equal(t, "cache.get.hit", spans.cumulative[0].name)
}

func TestNoActiveSpan(t *testing.T) {
	spans := &recordingSpans{noSpan: true}
	opts := Options{Config: stubConfig{fallback: 1}, Spans: spans}

	op := Instrument(loadMethod, MethodNamer(), func(context.Context) (int, error) {
		return 7, nil
	}, EndFieldInterceptor(opts), CumulativeFieldInterceptor(opts))

	got, err := op(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Zero(t, spans.writes())
}

func TestFieldWriteFailureIsIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	spans := &recordingSpans{panicWrite: true}
	opts := Options{
		Config: stubConfig{fallback: 1},
		Spans:  spans,
		Logger: logx.New(logx.WithCore(core)),
	}

	op := Instrument(loadMethod, StaticNamer("orders.load"), func(context.Context) (string, error) {
		return "ok", nil
	}, CumulativeFieldInterceptor(opts))

	got, err := op(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, logs.FilterMessage("span field write failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("START: cumulative field interceptor").Len())
	assert.Equal(t, 1, logs.FilterMessage("END: cumulative field interceptor").Len())
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(s string) Interceptor {
		return func(next Func) Func {
			return func(ctx context.Context, call *Call) (any, error) {
				order = append(order, s)
				return next(ctx, call)
			}
		}
	}

	op := Instrument(loadMethod, nil, func(context.Context) (int, error) {
		order = append(order, "op")
		return 0, nil
	}, tag("outer"), nil, tag("inner"))

	_, err := op(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "op"}, order)
}

func TestCallFromContext(t *testing.T) {
	assert.Nil(t, CallFromContext(context.Background()))
	assert.False(t, SetNameSuffix(context.Background(), "x"))

	call := NewCall(loadMethod, "orders.load")
	ctx := WithCall(context.Background(), call)
	assert.Same(t, call, CallFromContext(ctx))
	assert.True(t, SetNameSuffix(ctx, "miss"))
	assert.Equal(t, "miss", call.NameSuffix())
}

func TestMethodKeyAndProcedure(t *testing.T) {
	assert.Equal(t, "OrderService.Load", loadMethod.Key())
	assert.Equal(t, "Load", Method{Name: "Load"}.Key())

	tests := []struct {
		in   string
		want Method
	}{
		{"/acme.orders.v1.OrderService/GetOrder", Method{Class: "acme.orders.v1.OrderService", Name: "GetOrder"}},
		{"OrderService/GetOrder", Method{Class: "OrderService", Name: "GetOrder"}},
		{"ping", Method{Name: "ping"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseProcedure(tt.in), tt.in)
	}
}
