// Command syscontrold serves the system-control interface over TCP, with an
// optional admin HTTP surface and etcd registration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"

	"syscontrol/admin"
	"syscontrol/config"
	"syscontrol/middleware"
	"syscontrol/observability"
	"syscontrol/registry"
	"syscontrol/server"
	"syscontrol/store"
	"syscontrol/syscontrol"
)

func main() {
	configPath := flag.String("config", "", "path to syscontrold.toml (defaults built in)")
	flag.Parse()

	observability.ConfigureRuntime()
	cfg, err := config.LoadDaemonConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load daemon config")
	}
	log.Info().Str("path", *configPath).Str("node", cfg.NodeName).Msg("loaded daemon config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "syscontrold: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.DaemonConfig) error {
	var etcd *clientv3.Client
	if len(cfg.EtcdEndpoints) > 0 {
		c, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.EtcdEndpoints,
			DialTimeout: registry.DefaultDialTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		defer c.Close()
		etcd = c
	}

	backend, err := buildBackend(cfg, etcd)
	if err != nil {
		return err
	}

	svr := server.NewServer(
		server.WithTTL(cfg.RegistryTTL),
		server.WithInstance(cfg.Weight, cfg.Version),
	)
	if err := svr.Register(syscontrol.NewStub(backend)); err != nil {
		return err
	}
	for _, mw := range serverMiddlewares(cfg) {
		svr.Use(mw)
	}

	var reg registry.Registry
	if etcd != nil {
		reg = registry.NewEtcdRegistryFromClient(etcd)
	}

	errs := make(chan error, 2)
	go func() {
		errs <- svr.Serve("tcp", cfg.ListenAddr, cfg.AdvertiseAddr, reg)
	}()

	var adm *admin.Admin
	if cfg.AdminListenAddr != "" {
		adm = admin.New(cfg.NodeName, svr, backend)
		go func() {
			errs <- adm.ListenAndServe(cfg.AdminListenAddr)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errs:
		if err != nil {
			log.Error().Err(err).Msg("listener stopped")
		}
	}

	if adm != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		adm.Shutdown(shutdownCtx)
		cancel()
	}
	if serr := svr.Shutdown(cfg.ShutdownTimeout); serr != nil {
		log.Warn().Err(serr).Msg("server shutdown")
	}
	return err
}

// buildBackend assembles the property store, sysfs root and boot environment
// named by cfg. etcd may be nil unless the property backend is etcd.
func buildBackend(cfg config.DaemonConfig, etcd *clientv3.Client) (*store.Backend, error) {
	var props store.PropertyStore
	switch cfg.PropertyBackend {
	case "etcd":
		if etcd == nil {
			return nil, fmt.Errorf("property backend etcd: no etcd client")
		}
		es := store.NewEtcdStore(etcd, cfg.EtcdPrefix, 0)
		for k, v := range cfg.Properties {
			if err := es.Set(k, v); err != nil {
				return nil, fmt.Errorf("seed property %q: %w", k, err)
			}
		}
		props = es
	default:
		props = store.NewMemoryStore(cfg.Properties)
	}

	env, err := store.OpenBootEnv(cfg.BootEnvPath)
	if err != nil {
		return nil, err
	}

	var sysfs *store.Sysfs
	if cfg.SysfsRoot != "" {
		sysfs = store.NewSysfs(cfg.SysfsRoot)
	}
	return store.NewBackend(props, sysfs, env), nil
}

// serverMiddlewares returns the chain in outermost-first order: panics are
// caught around everything, and rejected requests are still logged and counted.
func serverMiddlewares(cfg config.DaemonConfig) []middleware.Middleware {
	mws := []middleware.Middleware{
		middleware.RecoverMiddleware(),
		middleware.LoggingMiddleware(),
		middleware.MetricsMiddleware("server", opcodeName),
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.RequestTimeout > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(cfg.RequestTimeout))
	}
	return mws
}

func opcodeName(code uint32) string {
	return syscontrol.Opcode(code).String()
}
