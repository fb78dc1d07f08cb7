// Command daemon is the Daemon Runtime entrypoint (spec.md §4.9):
// loads the persisted identity document, wires the discovery pipeline,
// and runs until an unrecoverable error or a shutdown signal arrives.
// Grounded on cwilson613-specularium's cmd/server/main.go for the
// flag/log-setup/signal-driven-shutdown shape, generalized from an
// HTTP-server entrypoint to this runtime's register-then-loop one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netwalk/internal/budgeter"
	"netwalk/internal/buffer"
	"netwalk/internal/config"
	"netwalk/internal/daemonrt"
	"netwalk/internal/endpoint"
	"netwalk/internal/logging"
	"netwalk/internal/scanctl"
	"netwalk/internal/session"
	"netwalk/internal/snmpwalk"
	"netwalk/internal/transport"
)

// defaultEndpointProbeTimeout and defaultSNMPProbeTimeout apply when
// the config doesn't pin cfg.Scan.ProbeTimeout, per spec.md §5's
// Timeouts line (HTTP endpoint probe 800 ms; SNMP get 2 s). An
// explicit cfg.Scan.ProbeTimeout override, when set, applies uniformly
// to both — it's an operator escape hatch, not a per-protocol knob.
const (
	defaultEndpointProbeTimeout = 800 * time.Millisecond
	defaultSNMPProbeTimeout     = 2 * time.Second
)

// exit codes per spec.md §6: 0 normal, non-zero on unrecoverable
// authorization failure or config error.
const (
	exitOK         = 0
	exitConfigErr  = 1
	exitRuntimeErr = 2
)

// reporterProxy breaks the Daemon/Runner construction cycle: the
// Runner needs a session.ProgressReporter at construction, but the
// Daemon (the real reporter) isn't built until after the Runner it
// holds. daemon is filled in once both exist; ReportProgress is never
// invoked before a session starts, well after main has finished wiring.
type reporterProxy struct {
	daemon *daemonrt.Daemon
}

func (p *reporterProxy) ReportProgress(ctx context.Context, update session.ProgressUpdate) {
	p.daemon.ReportProgress(ctx, update)
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to netwalk.json (default: search standard locations)")
	serverURL := flag.String("server", "", "server base URL, e.g. https://netwalk.example.com")
	flag.Parse()

	logger := logging.New()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, _, err = config.LoadFromPath(*configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		logger.Error("failed to load config", err)
		return exitConfigErr
	}

	if *serverURL == "" {
		logger.Error("missing required -server flag", fmt.Errorf("no server URL given"))
		return exitConfigErr
	}

	client := transport.New(*serverURL, cfg.APIKey, cfg.NetworkID)

	buf := buffer.New()

	concurrencyOverride, portBatchOverride := 0, 0
	if cfg.Scan.ConcurrentHosts != nil {
		concurrencyOverride = *cfg.Scan.ConcurrentHosts
	}
	if cfg.Scan.PortBatchSize != nil {
		portBatchOverride = *cfg.Scan.PortBatchSize
	}
	budget, err := budgeter.OptimalConcurrentScans(concurrencyOverride, portBatchOverride)
	if err != nil {
		logger.Error("failed to compute resource budget", err)
		return exitRuntimeErr
	}
	controller := scanctl.New(budget.PortBatchSize)

	endpointTimeout, snmpTimeout := defaultEndpointProbeTimeout, defaultSNMPProbeTimeout
	if cfg.Scan.ProbeTimeout != nil {
		endpointTimeout = cfg.Scan.ProbeTimeout.Duration()
		snmpTimeout = cfg.Scan.ProbeTimeout.Duration()
	}
	endpointProber := endpoint.New(endpointTimeout)
	snmpWalker := snmpwalk.New(snmpTimeout)

	proxy := &reporterProxy{}
	runner := session.New(buf, controller, endpointProber, snmpWalker, proxy)
	daemon := daemonrt.New(cfg, client, buf, runner, logger)
	proxy.daemon = daemon

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		logger.Info("shutdown signal received, stopping daemon")
		cancel()
	}()

	logger.Info("starting daemon",
		logging.F("mode", cfg.Mode),
		logging.F("network_id", cfg.NetworkID),
	)

	if err := daemon.Run(ctx); err != nil {
		var authErr *transport.AuthError
		if errors.As(err, &authErr) {
			logger.Error("authorization failure, exiting", err)
			return exitRuntimeErr
		}
		logger.Error("daemon runtime exited with error", err)
		return exitRuntimeErr
	}

	logger.Info("daemon stopped")
	return exitOK
}
