// Command router runs the reverse proxy and load balancer: a pool kept
// in sync with the Registry, an independent health checker, and the
// tiered selection/retry proxy pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ceng23333/InfiniLM-SVC/internal/httpclient"
	"github.com/Ceng23333/InfiniLM-SVC/internal/router"
	"github.com/Ceng23333/InfiniLM-SVC/internal/telemetry"
	"goa.design/clue/log"
)

func main() {
	var (
		portF               = flag.Int("port", 8080, "HTTP port")
		registryURLF        = flag.String("registry-url", "http://127.0.0.1:8081", "Registry base URL")
		staticServicesFileF = flag.String("static-services-file", "", "optional static services file (JSON or YAML)")
		healthIntervalF     = flag.Duration("health-interval", router.DefaultRouterHealthInterval, "interval between babysitter health checks")
		healthTimeoutF      = flag.Duration("health-timeout", router.DefaultRouterHealthTimeout, "per-instance health check timeout")
		maxErrorsF          = flag.Int("max-errors", router.DefaultMaxErrors, "consecutive failures before escalating health-check logging")
		syncIntervalF       = flag.Duration("registry-sync-interval", router.DefaultRegistrySyncInterval, "interval between Registry sync ticks")
		gracePeriodF        = flag.Duration("service-removal-grace-period", router.DefaultGracePeriod, "how long an absent non-static instance survives before removal")
		dbgF                = flag.Bool("debug", false, "enable debug-level logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg := router.Config{
		Port:                      *portF,
		RegistryURL:               *registryURLF,
		StaticServicesFile:        *staticServicesFileF,
		HealthInterval:            *healthIntervalF,
		HealthTimeout:             *healthTimeoutF,
		MaxErrors:                 *maxErrorsF,
		RegistrySyncInterval:      *syncIntervalF,
		ServiceRemovalGracePeriod: *gracePeriodF,
	}.WithDefaults()

	obs := telemetry.NewObservability(telemetry.NewClueLogger(), telemetry.NewOTELMetrics(telemetry.InstrumentationRouter), telemetry.NewOTELTracer(telemetry.InstrumentationRouter))

	pool := router.NewPool()
	if cfg.StaticServicesFile != "" {
		entries, err := router.LoadStaticServicesFile(cfg.StaticServicesFile)
		if err != nil {
			log.Fatalf(ctx, err, "failed to load static services file %q", cfg.StaticServicesFile)
		}
		pool.LoadStatic(entries)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	selector := router.NewSelector(pool)
	proxy := router.NewProxy(selector, httpclient.New(), obs)

	syncer := router.NewSyncer(pool, httpClient, cfg.RegistryURL, cfg.RegistrySyncInterval, cfg.ServiceRemovalGracePeriod, obs)
	healthChecker := router.NewHealthChecker(pool, httpClient, cfg.HealthInterval, cfg.HealthTimeout, cfg.MaxErrors, obs)

	runCtx, cancel := context.WithCancel(ctx)
	syncer.Start(runCtx)
	healthChecker.Start(runCtx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router.NewHandler(pool, proxy),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf(ctx, "router listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)

	cancel()
	syncer.Stop()
	healthChecker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "error shutting down server"})
	}
	log.Printf(ctx, "exited")
}
