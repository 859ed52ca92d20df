package configx

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.eggybyte.com/o11y/core/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Env: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, "app", cfg.ServiceName)
	assert.Equal(t, "0.0.0", cfg.ServiceVersion)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1, cfg.BaseSampleRate)
	assert.Equal(t, 1, cfg.MeterRatio)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.CPNames)
	assert.False(t, cfg.Insecure)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "o11y.yaml")
	writeFile(t, path, `
service_name: orders
enabled: false
base_sample_rate: 10
cp_names: "main, replica"
sample_rates:
  OrderService: 5
`)

	cfg, err := Load(LoadOptions{
		File: path,
		Env: map[string]string{
			"O11Y_SERVICE_NAME":     "orders-env",
			"O11Y_BASE_SAMPLE_RATE": "20",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "orders-env", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 20, cfg.BaseSampleRate)
	assert.Equal(t, "main, replica", cfg.CPNames)
	assert.Equal(t, map[string]int{"OrderService": 5}, cfg.SampleRates)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadSampleRatesFromEnv(t *testing.T) {
	cfg, err := Load(LoadOptions{Env: map[string]string{
		"O11Y_SAMPLE_RATES": "OrderService.Create=3, db.query=7",
	}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"OrderService.Create": 3, "db.query": 7}, cfg.SampleRates)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		opts LoadOptions
	}{
		{name: "bad int", opts: LoadOptions{Env: map[string]string{"O11Y_METER_RATIO": "many"}}},
		{name: "bad bool", opts: LoadOptions{Env: map[string]string{"O11Y_ENABLED": "maybe"}}},
		{name: "bad map", opts: LoadOptions{Env: map[string]string{"O11Y_SAMPLE_RATES": "a"}}},
		{name: "meter ratio below one", opts: LoadOptions{Env: map[string]string{"O11Y_METER_RATIO": "0"}}},
		{name: "negative base rate", opts: LoadOptions{Env: map[string]string{"O11Y_BASE_SAMPLE_RATE": "-1"}}},
		{name: "unknown log level", opts: LoadOptions{Env: map[string]string{"O11Y_LOG_LEVEL": "loud"}}},
		{name: "empty service name", opts: LoadOptions{Env: map[string]string{"O11Y_SERVICE_NAME": ""}}},
		{name: "missing file", opts: LoadOptions{File: "/nonexistent/o11y.yaml", Env: map[string]string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument), "got %v", err)
		})
	}
}

func TestSampleRateLookup(t *testing.T) {
	cfg := &Config{
		BaseSampleRate: 1,
		SampleRates: map[string]int{
			"OrderService":        4,
			"OrderService.Create": 2,
			"db":                  0,
		},
	}

	tests := []struct {
		key  string
		want int
	}{
		{key: "OrderService.Create", want: 2},
		{key: "OrderService.Cancel", want: 4},
		{key: "OrderService", want: 4},
		{key: "db.query.select", want: 0},
		{key: "Unknown.method", want: 1},
		{key: "", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.SampleRate(tt.key))
		})
	}
}

func TestStore(t *testing.T) {
	store := NewStore(&Config{Enabled: true, CPNames: "main", MeterRatio: 3, NodePrefix: "node1", BaseSampleRate: 2})

	assert.True(t, store.IsEnabled())
	assert.Equal(t, "main", store.CPNames())
	assert.Equal(t, 3, store.MeterRatio())
	assert.Equal(t, "node1", store.NodePrefix())
	assert.Equal(t, 2, store.SampleRate("x"))

	store.Replace(&Config{Enabled: false, MeterRatio: 1})
	assert.False(t, store.IsEnabled())

	store.Replace(nil)
	assert.True(t, store.IsEnabled())
	assert.Equal(t, "app", store.Current().ServiceName)
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "o11y.yaml")
	writeFile(t, path, "base_sample_rate: 1\n")

	opts := LoadOptions{File: path, Env: map[string]string{}}
	cfg, err := Load(opts)
	require.NoError(t, err)
	store := NewStore(cfg)

	var mu sync.Mutex
	var seen []*Config
	w, err := NewWatcher(store, WatchOptions{
		Load:     opts,
		Debounce: 10 * time.Millisecond,
		OnChange: func(c *Config) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, c)
		},
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, path, "base_sample_rate: 9\n")
	assert.Eventually(t, func() bool {
		return store.SampleRate("any") == 9
	}, 2*time.Second, 10*time.Millisecond)

	writeFile(t, path, "meter_ratio: 0\n")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 9, store.SampleRate("any"))

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, seen)
}

func TestNewWatcherRequiresFile(t *testing.T) {
	_, err := NewWatcher(NewStore(nil), WatchOptions{})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument), "got %v", err)

	_, err = NewWatcher(NewStore(nil), WatchOptions{Load: LoadOptions{File: "/nonexistent/dir/o11y.yaml"}})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument), "got %v", err)
}

// Kubernetes ConfigMap volumes expose o11y.yaml -> ..data/o11y.yaml and
// publish updates by renaming a fresh ..data link over the old one.
func TestWatcherFollowsConfigMapSwap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "..v1"), 0o755))
	writeFile(t, filepath.Join(dir, "..v1", "o11y.yaml"), "base_sample_rate: 1\n")
	require.NoError(t, os.Symlink("..v1", filepath.Join(dir, "..data")))
	require.NoError(t, os.Symlink(filepath.Join("..data", "o11y.yaml"), filepath.Join(dir, "o11y.yaml")))

	opts := LoadOptions{File: filepath.Join(dir, "o11y.yaml"), Env: map[string]string{}}
	cfg, err := Load(opts)
	require.NoError(t, err)
	store := NewStore(cfg)
	require.Equal(t, 1, store.SampleRate("any"))

	w, err := NewWatcher(store, WatchOptions{Load: opts, Debounce: 10 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "..v2"), 0o755))
	writeFile(t, filepath.Join(dir, "..v2", "o11y.yaml"), "base_sample_rate: 9\n")
	require.NoError(t, os.Symlink("..v2", filepath.Join(dir, "..data_tmp")))
	require.NoError(t, os.Rename(filepath.Join(dir, "..data_tmp"), filepath.Join(dir, "..data")))

	assert.Eventually(t, func() bool {
		return store.SampleRate("any") == 9
	}, 2*time.Second, 10*time.Millisecond)
}

func TestValidateStructDescribesFields(t *testing.T) {
	cfg, err := Load(LoadOptions{Env: map[string]string{}})
	require.NoError(t, err)
	assert.NoError(t, ValidateStruct(nil, cfg))

	cfg.MeterRatio = 0
	err = ValidateStruct(nil, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument), "got %v", err)
	assert.Contains(t, err.Error(), "Config.MeterRatio must be gte 1")
}
