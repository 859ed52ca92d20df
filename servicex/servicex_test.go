package servicex

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"go.eggybyte.com/o11y/configx"
	o11yerrors "go.eggybyte.com/o11y/core/errors"
	"go.eggybyte.com/o11y/interceptx"
	"go.eggybyte.com/o11y/logx"
)

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

type downDriver struct{}

func (downDriver) Open(string) (driver.Conn, error) { return nil, errors.New("connection refused") }

func init() {
	sql.Register("servicex-stub", stubDriver{})
	sql.Register("servicex-down", downDriver{})
}

func openStub(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("servicex-stub", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig(t *testing.T) *configx.Config {
	t.Helper()
	cfg, err := configx.Load(configx.LoadOptions{Env: map[string]string{
		"O11Y_SERVICE_NAME": "orders",
		"O11Y_CP_NAMES":     "main",
	}})
	require.NoError(t, err)
	return cfg
}

func newKit(t *testing.T, opts ...Option) (*Kit, *tracetest.InMemoryExporter, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	exporter := tracetest.NewInMemoryExporter()

	base := []Option{
		WithConfig(testConfig(t)),
		WithLogger(logx.New(logx.WithCore(core))),
		WithSpanExporter(exporter),
	}
	kit, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kit.Shutdown(context.Background()) })
	return kit, exporter, logs
}

func spanAttrs(s tracetest.SpanStub) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestKitRootSpanCarriesFields(t *testing.T) {
	kit, exporter, logs := newKit(t, WithDataSource("main", openStub(t)))

	load := interceptx.Instrument(interceptx.Method{Class: "OrderService", Name: "Load"},
		interceptx.StaticNamer("orders.load"),
		func(context.Context) (string, error) { return "order-1", nil },
		kit.CumulativeFieldInterceptor(),
	)
	handler := kit.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := load(r.Context())
		require.NoError(t, err)
		_, _ = w.Write([]byte(got))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/1", nil))
	assert.Equal(t, "order-1", rec.Body.String())

	require.NoError(t, kit.Tracing.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /orders/1", spans[0].Name)

	attrs := spanAttrs(spans[0])
	assert.Contains(t, attrs, attribute.Key("orders.load"))
	assert.Equal(t, int64(1), attrs["orders.load.count"].AsInt64())
	assert.Contains(t, attrs, attribute.Key("cp.main.activeCount"))
	assert.Contains(t, attrs, attribute.Key("jvm.memory.heap.used"))

	assert.Equal(t, 1, logs.FilterMessage("instrumentation ready").Len())
}

func TestKitExportsRootFieldsAndHealth(t *testing.T) {
	registry := prometheus.NewRegistry()
	kit, _, _ := newKit(t, WithRegistry(registry), WithDataSource("main", openStub(t)))

	n, err := testutil.GatherAndCount(registry, RootFieldsMetric)
	require.NoError(t, err)
	assert.Greater(t, n, 17)

	assert.Equal(t, []string{"db.main"}, kit.Manager.HealthChecks().Names())
	assert.True(t, kit.Manager.HealthChecks().Healthy(context.Background()))

	kit.Manager.Mark("orders.created")
	assert.Equal(t, int64(1), kit.Manager.Meter("orders.created").Count())
	assert.InDelta(t, 1, testutil.ToFloat64(kit.Manager.Meter("orders.created").Collector()), 0)
}

func TestKitGORMDataSource(t *testing.T) {
	db := openStub(t)
	kit, _, _ := newKit(t, WithGORM("main", &gorm.DB{Config: &gorm.Config{ConnPool: db}}))
	assert.Equal(t, []string{"jdbc/main"}, kit.Directory.Names())

	_, err := New(context.Background(),
		WithConfig(testConfig(t)),
		WithSpanExporter(tracetest.NewInMemoryExporter()),
		WithGORM("broken", &gorm.DB{Config: &gorm.Config{}}),
	)
	assert.True(t, o11yerrors.IsCode(err, o11yerrors.CodeFailedPrecondition))
}

func TestKitReloadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "o11y.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service_name: orders\nbase_sample_rate: 1\n"), 0o600))

	core, _ := observer.New(zapcore.DebugLevel)
	kit, err := New(context.Background(),
		WithConfigFile(path),
		WithLogger(logx.New(logx.WithCore(core))),
		WithSpanExporter(tracetest.NewInMemoryExporter()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kit.Shutdown(context.Background()) })
	assert.Equal(t, 1, kit.Config.SampleRate("OrderService.Load"))

	require.NoError(t, os.WriteFile(path, []byte("service_name: orders\nbase_sample_rate: 0\n"), 0o600))
	assert.Eventually(t, func() bool {
		return kit.Config.SampleRate("OrderService.Load") == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewRejectsInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "o11y.yaml")
	require.NoError(t, os.WriteFile(path, []byte("meter_ratio: 0\n"), 0o600))

	_, err := New(context.Background(), WithConfigFile(path), WithoutWatch())
	assert.True(t, o11yerrors.IsCode(err, o11yerrors.CodeInvalidArgument))
}

func TestShutdownRunsHooksInReverse(t *testing.T) {
	kit, _, _ := newKit(t)

	var order []int
	kit.AddShutdownHook(func(context.Context) error { order = append(order, 1); return nil })
	kit.AddShutdownHook(func(context.Context) error { order = append(order, 2); return errors.New("hook failed") })

	err := kit.Shutdown(context.Background())
	assert.EqualError(t, err, "hook failed")
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, kit.Shutdown(context.Background()))
}

func TestPingCheckOpensBreaker(t *testing.T) {
	db, err := sql.Open("servicex-down", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	check := pingCheck("db.main", db, logx.New(logx.WithCore(core)))

	for i := 0; i < breakerFailures; i++ {
		res, err := check.Check(context.Background())
		require.NoError(t, err)
		assert.False(t, res.Healthy)
		assert.EqualError(t, res.Err, "connection refused")
	}

	res, err := check.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.ErrorIs(t, res.Err, gobreaker.ErrOpenState)
	assert.Equal(t, 1, logs.FilterMessage("health probe breaker changed state").Len())
}
