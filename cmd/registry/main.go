// Command registry runs the service directory: register/update/
// unregister/heartbeat/list/stats over HTTP, a background health
// prober, and a stale-record reaper.
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

	"github.com/Ceng23333/InfiniLM-SVC/internal/registry"
	"github.com/Ceng23333/InfiniLM-SVC/internal/telemetry"
	"goa.design/clue/log"
)

func main() {
	var (
		portF            = flag.Int("port", 8081, "HTTP port")
		healthIntervalF  = flag.Duration("health-interval", registry.DefaultHealthInterval, "interval between health prober rounds")
		healthTimeoutF   = flag.Duration("health-timeout", registry.DefaultHealthTimeout, "per-probe timeout")
		cleanupIntervalF = flag.Duration("cleanup-interval", registry.DefaultCleanupInterval, "interval between reaper sweeps")
		probeTimeoutF    = flag.Duration("probe-timeout", 5*time.Second, "timeout for on-demand GET /services/{name}/health")
		dbgF             = flag.Bool("debug", false, "enable debug-level logging")
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

	cfg := registry.Config{
		Port:            *portF,
		HealthInterval:  *healthIntervalF,
		HealthTimeout:   *healthTimeoutF,
		CleanupInterval: *cleanupIntervalF,
	}.WithDefaults()

	obs := telemetry.NewObservability(telemetry.NewClueLogger(), telemetry.NewOTELMetrics(telemetry.InstrumentationRegistry), telemetry.NewOTELTracer(telemetry.InstrumentationRegistry))

	store := registry.NewMemoryStore()
	dir := registry.NewDirectory(store, &http.Client{Timeout: *probeTimeoutF}, *probeTimeoutF, obs)

	prober := registry.NewHealthProber(store, &http.Client{Timeout: cfg.HealthTimeout}, cfg.HealthInterval, cfg.HealthTimeout, obs)
	reaper := registry.NewReaper(store, cfg.CleanupInterval, obs)

	runCtx, cancel := context.WithCancel(ctx)
	prober.Start(runCtx)
	reaper.Start(runCtx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: registry.NewHandler(dir),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf(ctx, "registry listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)

	cancel()
	prober.Stop()
	reaper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "error shutting down server"})
	}
	log.Printf(ctx, "exited")
}
