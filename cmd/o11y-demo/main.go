// Command o11y-demo serves a small instrumented HTTP and Connect API.
//
// Usage:
//
//	o11y-demo --addr :8080 --config o11y.yaml --db-driver postgres --db-dsn "$DSN"
//
// Configuration is read from the file and the O11Y_* environment.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"

	"go.eggybyte.com/o11y/configx"
	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/interceptx"
	"go.eggybyte.com/o11y/logx"
	"go.eggybyte.com/o11y/metricx"
	"go.eggybyte.com/o11y/servicex"
)

const pingProcedure = "/demo.ping.v1.PingService/Ping"

type serveOptions struct {
	addr       string
	configFile string
	db         databaseOptions
}

func newRootCommand() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:           "o11y-demo",
		Short:         "Serve an instrumented demo API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", ":8080", "listen address")
	flags.StringVar(&opts.configFile, "config", configx.FileFromEnv(), "YAML configuration file")
	flags.StringVar(&opts.db.Name, "db-name", "main", "connection pool name, listed in cp_names")
	flags.StringVar(&opts.db.Driver, "db-driver", "postgres", "database driver (mysql, postgres)")
	flags.StringVar(&opts.db.DSN, "db-dsn", "", "database DSN; no database when empty")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "o11y-demo: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts serveOptions) error {
	sources, closeDB, err := openDataSources(opts.db, logx.New())
	if err != nil {
		return err
	}
	defer closeDB()

	kit, err := initializeKit(ctx, servicex.ConfigFile(opts.configFile), sources)
	if err != nil {
		return err
	}
	defer func() {
		if err := kit.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "o11y-demo: shutdown: %v\n", err)
		}
	}()

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           newRouter(kit),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		kit.Logger.Info("server listening", log.Str("addr", opts.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	kit.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(kit *servicex.Kit) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Handle("/metrics", kit.Metrics.PrometheusHandler())
	r.Handle("/healthz", kit.Manager.HealthChecks().Handler())

	w := newWorker(kit)
	r.Group(func(r chi.Router) {
		r.Use(kit.Middleware)
		r.Get("/work", w.serveWork)
		r.Handle(pingProcedure, connect.NewUnaryHandler(pingProcedure, w.ping,
			connect.WithInterceptors(kit.ConnectInterceptor()),
		))
	})
	return r
}

type worker struct {
	kit  *servicex.Kit
	work func(context.Context) (int, error)
}

func newWorker(kit *servicex.Kit) *worker {
	w := &worker{kit: kit}
	load := interceptx.Instrument(interceptx.Method{Class: "DemoService", Name: "Load"},
		interceptx.MethodNamer(), w.load, kit.CumulativeFieldInterceptor())
	w.work = interceptx.Instrument(interceptx.Method{Class: "DemoService", Name: "Work"},
		interceptx.StaticNamer("demo.work.started"),
		func(ctx context.Context) (int, error) {
			return metricx.Wrap(ctx, kit.Manager, load, func() string { return "demo.work" })
		},
		kit.EndFieldInterceptor(),
	)
	return w
}

func (w *worker) serveWork(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := w.work(ctx)
	if err != nil {
		logx.FromContext(ctx, w.kit.Logger).Error(err, "work failed")
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(rw, "loaded %d items\n", n)
}

func (w *worker) load(ctx context.Context) (int, error) {
	select {
	case <-time.After(time.Duration(5+rand.IntN(20)) * time.Millisecond):
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return rand.IntN(100), nil
}

func (w *worker) ping(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	interceptx.SetNameSuffix(ctx, "ok")
	return connect.NewResponse(&emptypb.Empty{}), nil
}
