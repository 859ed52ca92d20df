package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/protobuf/types/known/emptypb"

	"go.eggybyte.com/o11y/configx"
	"go.eggybyte.com/o11y/servicex"
)

func newTestServer(t *testing.T) (*httptest.Server, *servicex.Kit, *tracetest.InMemoryExporter) {
	t.Helper()
	cfg, err := configx.Load(configx.LoadOptions{Env: map[string]string{"O11Y_SERVICE_NAME": "demo"}})
	require.NoError(t, err)

	exporter := tracetest.NewInMemoryExporter()
	kit, err := servicex.New(context.Background(), servicex.WithConfig(cfg), servicex.WithSpanExporter(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kit.Shutdown(context.Background()) })

	srv := httptest.NewServer(newRouter(kit))
	t.Cleanup(srv.Close)
	return srv, kit, exporter
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestWorkEndpoint(t *testing.T) {
	srv, kit, exporter := newTestServer(t)

	code, body := get(t, srv.URL+"/work")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "loaded")

	require.NoError(t, kit.Tracing.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	keys := map[string]bool{}
	for _, kv := range spans[0].Attributes {
		keys[string(kv.Key)] = true
	}
	assert.True(t, keys["demo.work.started"])
	assert.True(t, keys["DemoService.Load"])
	assert.True(t, keys["DemoService.Load.count"])
	assert.True(t, keys["jvm.threads.count"])

	assert.Equal(t, int64(1), kit.Manager.Meter("demo.work.meter").Count())
}

func TestOperationalEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)

	code, _ := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)

	get(t, srv.URL+"/work")
	code, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, servicex.RootFieldsMetric)
	assert.Contains(t, body, "demo_work_starts_total")
}

func TestPingProcedure(t *testing.T) {
	srv, kit, exporter := newTestServer(t)

	client := connect.NewClient[emptypb.Empty, emptypb.Empty](srv.Client(), srv.URL+pingProcedure)
	_, err := client.CallUnary(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)

	require.NoError(t, kit.Tracing.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	keys := map[string]bool{}
	for _, kv := range spans[0].Attributes {
		keys[string(kv.Key)] = true
	}
	assert.True(t, keys["demo.ping.v1.PingService.Ping.ok"])
	assert.True(t, keys["demo.ping.v1.PingService.Ping.ok.count"])
}

func TestOpenDataSources(t *testing.T) {
	sources, closeDB, err := openDataSources(databaseOptions{Name: "main"}, nil)
	require.NoError(t, err)
	assert.Empty(t, sources)
	closeDB()

	_, _, err = openDataSources(databaseOptions{Name: "main", Driver: "oracle", DSN: "x"}, nil)
	assert.EqualError(t, err, "unsupported driver: oracle")
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--addr", ":9090", "--db-driver", "mysql"}))

	addr, err := cmd.Flags().GetString("addr")
	require.NoError(t, err)
	assert.Equal(t, ":9090", addr)
	driver, err := cmd.Flags().GetString("db-driver")
	require.NoError(t, err)
	assert.Equal(t, "mysql", driver)
}
