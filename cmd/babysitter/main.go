// Command babysitter supervises one worker process: spawning it,
// waiting for readiness, registering it (and itself) with the
// Registry, sending heartbeats, and exposing a local control surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Ceng23333/InfiniLM-SVC/internal/babysitter"
	"github.com/Ceng23333/InfiniLM-SVC/internal/telemetry"
	"goa.design/clue/log"
)

func main() {
	var (
		nameF         = flag.String("name", "", "service name (default derived from backend and port)")
		hostF         = flag.String("host", "127.0.0.1", "worker host")
		portF         = flag.Int("port", 9000, "worker port")
		backendF      = flag.String("backend", string(babysitter.BackendCommand), "backend kind: command, InfiniLM, InfiniLM-Rust, vLLM, mock")
		pathF         = flag.String("path", "", "worker binary/script path (backend-specific)")
		commandF      = flag.String("command", "", "explicit command for the command backend")
		argsF         = flag.String("args", "", "comma-separated extra arguments")
		workDirF      = flag.String("workdir", "", "working directory for the child process")
		registryURLF  = flag.String("registry-url", "http://127.0.0.1:8081", "Registry base URL")
		maxRestartsF  = flag.Int("max-restarts", babysitter.DefaultMaxRestarts, "maximum automatic restarts before giving up")
		restartDelayF = flag.Duration("restart-delay", babysitter.DefaultRestartDelay, "delay before restarting a crashed worker")
		heartbeatF    = flag.Duration("heartbeat-interval", babysitter.DefaultHeartbeatInterval, "interval between Registry heartbeats")
		configFileF   = flag.String("config-file", "", "optional structured backend override file (JSON or YAML)")
		dbgF          = flag.Bool("debug", false, "enable debug-level logging")
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

	var args []string
	if *argsF != "" {
		args = strings.Split(*argsF, ",")
	}

	var configFile *babysitter.BackendConfig
	if *configFileF != "" {
		loaded, err := babysitter.LoadBackendConfigFile(*configFileF)
		if err != nil {
			log.Fatalf(ctx, err, "failed to load config file %q", *configFileF)
		}
		configFile = loaded
	}

	cfg := babysitter.Config{
		Name:              *nameF,
		Host:              *hostF,
		Port:              *portF,
		Backend:           babysitter.Backend(*backendF),
		Path:              *pathF,
		Command:           *commandF,
		Args:              args,
		WorkDir:           *workDirF,
		RegistryURL:       *registryURLF,
		MaxRestarts:       *maxRestartsF,
		RestartDelay:      *restartDelayF,
		HeartbeatInterval: *heartbeatF,
		ConfigFile:        configFile,
	}.WithDefaults()

	obs := telemetry.NewObservability(telemetry.NewClueLogger(), telemetry.NewOTELMetrics(telemetry.InstrumentationBabysitter), telemetry.NewOTELTracer(telemetry.InstrumentationBabysitter))

	state := babysitter.NewState(cfg)
	manager := babysitter.NewProcessManager(state, obs)
	registryClient := babysitter.NewRegistryClient(state, &http.Client{Timeout: 10 * time.Second}, obs)

	runCtx, cancel := context.WithCancel(ctx)
	manager.Start(runCtx)
	registryClient.SelfRegister(runCtx)
	go registryClient.RegisterManagedService(runCtx)
	registryClient.StartHeartbeat(runCtx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port+1),
		Handler: babysitter.NewControlHandler(state, &http.Client{Timeout: 5 * time.Second}),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf(ctx, "babysitter %q control surface listening on %s", cfg.Name, srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)

	cancel()
	manager.Stop()
	registryClient.StopHeartbeat()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "error shutting down control server"})
	}
	log.Printf(ctx, "exited")
}
