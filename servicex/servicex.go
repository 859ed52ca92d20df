// Package servicex assembles the o11y components into one instrumentation kit.
//
// Overview:
//   - Responsibility: Build logger, configuration, exporters, metrics and span managers in order
//   - Key Types: Kit, Option, ProviderSet
//   - Concurrency Model: Every component on Kit is safe for concurrent use
//   - Error Semantics: Initialization errors are returned immediately
//   - Performance Notes: Root span fields are read when a root span ends and on scrape
//
// Usage:
//
//	kit, err := servicex.New(ctx,
//	    servicex.WithConfigFile("o11y.yaml"),
//	    servicex.WithDataSource("main", db),
//	)
//	if err != nil {
//	    return err
//	}
//	defer kit.Shutdown(context.Background())
//
//	load := interceptx.Instrument(method, interceptx.MethodNamer(), loadOrders, kit.CumulativeFieldInterceptor())
package servicex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"

	"go.eggybyte.com/o11y/configx"
	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/interceptx"
	"go.eggybyte.com/o11y/logx"
	"go.eggybyte.com/o11y/metricx"
	"go.eggybyte.com/o11y/obsx"
	"go.eggybyte.com/o11y/rootspanx"
	"go.eggybyte.com/o11y/spanx"
)

// DefaultShutdownTimeout bounds Kit.Shutdown when ctx has no deadline.
const DefaultShutdownTimeout = 15 * time.Second

// Kit holds the assembled instrumentation components.
type Kit struct {
	Config      *configx.Store
	Logger      *logx.Logger
	Registry    *prometheus.Registry
	Metrics     *obsx.Provider
	Tracing     *sdktrace.TracerProvider
	MetricSet   *metricx.Registry
	Manager     *metricx.Manager
	Directory   *rootspanx.Directory
	Spans       *spanx.Manager
	Interceptor interceptx.Options

	endField   interceptx.Interceptor
	cumulative interceptx.Interceptor
	watcher    *configx.Watcher
	hooks      []func(context.Context) error
}

type settings struct {
	file     ConfigFile
	config   *configx.Config
	logger   *logx.Logger
	registry *prometheus.Registry
	exporter sdktrace.SpanExporter
	sources  DataSources
	gorm     map[string]*gorm.DB
	watch    bool
}

// Option configures New.
type Option func(*settings)

// WithConfigFile loads configuration from a YAML file and reloads it on change.
func WithConfigFile(path string) Option {
	return func(s *settings) {
		s.file = ConfigFile(path)
		s.watch = path != ""
	}
}

// WithConfig uses cfg instead of loading configuration.
func WithConfig(cfg *configx.Config) Option {
	return func(s *settings) { s.config = cfg }
}

// WithLogger uses logger instead of building one from configuration.
func WithLogger(logger *logx.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithRegistry exports into an existing Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *settings) { s.registry = registry }
}

// WithSpanExporter exports spans to exporter instead of the configured OTLP endpoint.
func WithSpanExporter(exporter sdktrace.SpanExporter) Option {
	return func(s *settings) { s.exporter = exporter }
}

// WithDataSource binds db as connection pool name. List the name in cp_names
// to report its statistics on root spans.
func WithDataSource(name string, db *sql.DB) Option {
	return func(s *settings) {
		if s.sources == nil {
			s.sources = DataSources{}
		}
		s.sources[name] = db
	}
}

// WithGORM binds the pool underneath a GORM handle as connection pool name.
func WithGORM(name string, db *gorm.DB) Option {
	return func(s *settings) {
		if s.gorm == nil {
			s.gorm = map[string]*gorm.DB{}
		}
		s.gorm[name] = db
	}
}

// WithoutWatch disables configuration reloads for WithConfigFile.
func WithoutWatch() Option {
	return func(s *settings) { s.watch = false }
}

// New builds a Kit. Configuration defaults to O11Y_CONFIG_FILE and the O11Y_* environment.
//
// Parameters:
//   - ctx: context for exporter initialization and the configuration watcher
//   - opts: functional options
//
// Returns:
//   - *Kit: assembled kit; call Shutdown when done
//   - error: configuration, exporter or data source error
func New(ctx context.Context, opts ...Option) (*Kit, error) {
	s := &settings{file: ConfigFile(configx.FileFromEnv())}
	s.watch = s.file != ""
	for _, opt := range opts {
		opt(s)
	}

	cfg := s.config
	if cfg == nil {
		var err error
		if cfg, err = ProvideConfig(s.file); err != nil {
			return nil, err
		}
	}
	logger := s.logger
	if logger == nil {
		logger = ProvideLogger(cfg)
	}
	registry := s.registry
	if registry == nil {
		registry = ProvideRegistry()
	}

	sources := DataSources{}
	for name, db := range s.sources {
		sources[name] = db
	}
	for name, gdb := range s.gorm {
		pool, err := rootspanx.GORMPool(gdb)
		if err != nil {
			return nil, fmt.Errorf("data source %q: %w", name, err)
		}
		sources[name] = pool.DB()
	}

	store := configx.NewStore(cfg)
	metrics, err := ProvideMetricsProvider(ctx, cfg, registry)
	if err != nil {
		return nil, err
	}
	tp, err := newTracerProvider(ctx, cfg, s.exporter)
	if err != nil {
		_ = metrics.Shutdown(ctx)
		return nil, err
	}

	var l log.Logger = logger
	metricSet := ProvideMetricRegistry(registry, l)
	manager := metricx.NewManager(metricSet, store, l)
	dir, err := ProvideDirectory(sources)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = metrics.Shutdown(ctx)
		return nil, err
	}
	spans := ProvideSpanManager(tp, ProvideRootSpanProviders(store, dir, l), l)

	file := ConfigFile("")
	if s.watch {
		file = s.file
	}
	return NewKit(ctx, file, sources, logger, store, registry, metrics, tp, metricSet, manager, dir, spans,
		ProvideInterceptorOptions(store, spans, l))
}

// NewKit completes a Kit from its components: it exports root span fields,
// registers a health check per data source and starts the configuration
// watcher when file is set.
func NewKit(
	ctx context.Context,
	file ConfigFile,
	sources DataSources,
	logger *logx.Logger,
	store *configx.Store,
	registry *prometheus.Registry,
	metrics *obsx.Provider,
	tp *sdktrace.TracerProvider,
	metricSet *metricx.Registry,
	manager *metricx.Manager,
	dir *rootspanx.Directory,
	spans *spanx.Manager,
	opts interceptx.Options,
) (*Kit, error) {
	k := &Kit{
		Config:      store,
		Logger:      logger,
		Registry:    registry,
		Metrics:     metrics,
		Tracing:     tp,
		MetricSet:   metricSet,
		Manager:     manager,
		Directory:   dir,
		Spans:       spans,
		Interceptor: opts,
		endField:    interceptx.EndFieldInterceptor(opts),
		cumulative:  interceptx.CumulativeFieldInterceptor(opts),
	}
	k.AddShutdownHook(metrics.Shutdown)
	k.AddShutdownHook(tp.Shutdown)

	reg, err := metrics.RegisterFieldSource(RootFieldsMetric, spans.RootFields)
	if err != nil {
		return nil, errors.Join(err, k.Shutdown(ctx))
	}
	k.AddShutdownHook(func(context.Context) error { return reg.Unregister() })

	for _, name := range sortedNames(sources) {
		k.Manager.HealthChecks().Register("db."+name, pingCheck("db."+name, sources[name], logger))
	}

	if file != "" {
		w, err := configx.NewWatcher(store, configx.WatchOptions{
			Load:   configx.LoadOptions{File: string(file)},
			Logger: logger,
			OnChange: func(cfg *configx.Config) {
				if err := logger.SetLevel(cfg.LogLevel); err != nil {
					logger.Warn("ignoring invalid log level", log.Str("level", cfg.LogLevel))
				}
			},
		})
		if err != nil {
			return nil, errors.Join(err, k.Shutdown(ctx))
		}
		k.watcher = w
		k.AddShutdownHook(func(context.Context) error { return w.Close() })
		go w.Run(ctx)
	}

	cfg := store.Current()
	logger.Info("instrumentation ready",
		log.Str("service", cfg.ServiceName),
		log.Any("enabled", cfg.Enabled),
		log.Int("base_sample_rate", cfg.BaseSampleRate),
		log.Int("data_sources", len(sources)),
	)
	return k, nil
}

// EndFieldInterceptor returns the interceptor stamping the call time on the active span.
func (k *Kit) EndFieldInterceptor() interceptx.Interceptor { return k.endField }

// CumulativeFieldInterceptor returns the interceptor summing call durations on the active span.
func (k *Kit) CumulativeFieldInterceptor() interceptx.Interceptor { return k.cumulative }

// ConnectInterceptor times every unary Connect RPC as a cumulative field named after its procedure.
func (k *Kit) ConnectInterceptor() connect.Interceptor {
	return interceptx.ConnectInterceptor(nil, k.cumulative)
}

// AddShutdownHook registers a hook run by Shutdown, last registered first.
func (k *Kit) AddShutdownHook(hook func(context.Context) error) {
	k.hooks = append(k.hooks, hook)
}

// Shutdown runs the shutdown hooks in LIFO order and flushes the logger.
// Every hook runs; their errors are joined.
func (k *Kit) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer cancel()
	}

	var errs []error
	for i := len(k.hooks) - 1; i >= 0; i-- {
		if err := k.hooks[i](ctx); err != nil {
			k.Logger.Error(err, "shutdown hook failed", log.Int("index", i))
			errs = append(errs, err)
		}
	}
	k.hooks = nil
	_ = k.Logger.Sync()
	return errors.Join(errs...)
}
