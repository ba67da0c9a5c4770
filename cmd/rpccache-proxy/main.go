// Command rpccache-proxy is a caching reverse proxy for Twirp services.
//
//	rpccache-proxy --upstream http://localhost:3001/twirp --listen :3002
//
// Callers set Cache-Control on their requests (max-age, no-cache, no-store,
// stale-while-revalidate, stale-if-error) and read X-Cache / Age on the responses.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/rpccache"
	"github.com/unkn0wn-root/rpccache/hooks/prom"
	"github.com/unkn0wn-root/rpccache/internal/config"
	rpczap "github.com/unkn0wn-root/rpccache/log/zap"
	"github.com/unkn0wn-root/rpccache/proxy"
	"github.com/unkn0wn-root/rpccache/revalidate"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "rpccache-proxy",
		Short:         "Caching reverse proxy for Twirp services",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file (default: ./rpccache.yaml if present)")
	f.String("listen", ":3002", "proxy listen address")
	f.String("metrics-listen", "", "separate listen address for /metrics (default: main listener)")
	f.String("upstream", "http://localhost:3001/twirp", "upstream Twirp base URL")
	f.String("prefix", "/twirp", "path prefix served by the proxy")
	f.String("store", "local", "cache store: local or redis")
	f.StringSlice("redis-addrs", []string{"localhost:6379"}, "redis addresses (several => cluster)")
	f.String("log-level", "info", "log level")
	f.Bool("disabled", false, "pass every call through without caching")

	for key, flag := range map[string]string{
		"listen":         "listen",
		"metrics_listen": "metrics-listen",
		"upstream":       "upstream",
		"prefix":         "prefix",
		"cache.store":    "store",
		"redis.addrs":    "redis-addrs",
		"log.level":      "log-level",
		"cache.disabled": "disabled",
	} {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	codec, err := newCodec(cfg.Cache)
	if err != nil {
		_ = st.Close(ctx)
		return fmt.Errorf("codec: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	hooks, err := prom.New(reg)
	if err != nil {
		_ = st.Close(ctx)
		return fmt.Errorf("metrics: %w", err)
	}

	dec, err := rpccache.New(rpccache.Options{
		Store:             st,
		Codec:             codec,
		Logger:            rpczap.New(log),
		Hooks:             hooks,
		Workers:           cfg.Cache.Workers,
		QueueSize:         cfg.Cache.Queue,
		RevalidateTimeout: cfg.Cache.RevalidateTimeout,
		Disabled:          cfg.Cache.Disabled,
	})
	if err != nil {
		_ = st.Close(ctx)
		return err
	}
	registerPoolMetrics(reg, dec)

	handler, err := proxy.New(proxy.Config{
		Upstream:    cfg.Upstream,
		Prefix:      cfg.Prefix,
		Decorator:   dec,
		MaxBodySize: cfg.MaxBodySize,
		Logger:      log,
	})
	if err != nil {
		_ = dec.Close(ctx)
		return err
	}

	metrics := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	mux := http.NewServeMux()
	mux.Handle(cfg.Prefix+"/", handler)
	servers := []*http.Server{{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}}
	if cfg.MetricsListen == "" {
		mux.Handle("/metrics", metrics)
	} else {
		mm := http.NewServeMux()
		mm.Handle("/metrics", metrics)
		servers = append(servers, &http.Server{Addr: cfg.MetricsListen, Handler: mm, ReadHeaderTimeout: 10 * time.Second})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(sctx))
		}
		errs = append(errs, dec.Close(sctx))
		return errors.Join(errs...)
	})

	log.Info("rpccache-proxy started",
		zap.String("version", version),
		zap.String("upstream", cfg.Upstream),
		zap.String("store", cfg.Cache.Store),
		zap.String("namespace", cfg.Cache.Namespace),
		zap.Bool("disabled", cfg.Cache.Disabled))
	return g.Wait()
}

func registerPoolMetrics(reg prometheus.Registerer, dec *rpccache.Decorator) {
	stat := func(pick func(revalidate.Stats) uint64) func() float64 {
		return func() float64 {
			st, _ := dec.SchedulerStats()
			return float64(pick(st))
		}
	}
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "rpccache", Subsystem: "revalidation", Name: "submitted_total",
			Help: "Background refreshes accepted by the worker pool.",
		}, stat(func(s revalidate.Stats) uint64 { return s.Submitted })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "rpccache", Subsystem: "revalidation", Name: "dropped_total",
			Help: "Background refreshes dropped because the queue was full.",
		}, stat(func(s revalidate.Stats) uint64 { return s.Dropped })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "rpccache", Subsystem: "revalidation", Name: "completed_total",
			Help: "Background refreshes that ran to completion.",
		}, stat(func(s revalidate.Stats) uint64 { return s.Completed })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "rpccache", Subsystem: "revalidation", Name: "panicked_total",
			Help: "Background refreshes that panicked.",
		}, stat(func(s revalidate.Stats) uint64 { return s.Panicked })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rpccache", Subsystem: "revalidation", Name: "queued",
			Help: "Background refreshes waiting for a worker.",
		}, func() float64 {
			st, _ := dec.SchedulerStats()
			return float64(st.Queued)
		}),
	)
}
