// Command server is the Session Manager entrypoint (spec.md §4.10):
// wires the historical record store, the in-memory session/registry
// state, and the SSE event hub behind the gin HTTP surface daemons
// poll and push updates to. Grounded on cwilson613-specularium's
// cmd/server/main.go for the flag/signal/graceful-shutdown shape,
// generalized from its graph/truth services to this daemon-facing
// session API.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"netwalk/internal/eventhub"
	"netwalk/internal/historystore"
	"netwalk/internal/logging"
	"netwalk/internal/serverconfig"
	"netwalk/internal/sessionmgr"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML deployment config (addr, db_path, api_key, max_session_age)")
	addr := flag.String("addr", ":8080", "HTTP listen address (ignored if -config is set)")
	dbPath := flag.String("db", "./netwalk-history.db", "discovery history SQLite database path (ignored if -config is set)")
	apiKey := flag.String("api-key", "", "bearer token daemons must present, empty disables auth (ignored if -config is set)")
	flag.Parse()

	logger := logging.New()

	cfg := serverconfig.Config{Addr: *addr, DBPath: *dbPath, APIKey: *apiKey, MaxSessionAge: "24h"}
	if *configPath != "" {
		loaded, err := serverconfig.Load(*configPath)
		if err != nil {
			logger.Error("failed to load server config", err)
			return 1
		}
		cfg = loaded
	}
	maxSessionAge, err := cfg.SessionMaxAge()
	if err != nil {
		logger.Error("invalid server config", err)
		return 1
	}

	store, err := historystore.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open discovery history database", err)
		return 1
	}
	defer store.Close()
	logger.Info("discovery history database opened", logging.F("path", cfg.DBPath))

	hub := eventhub.New(logger)
	hubDone := make(chan struct{})
	go hub.Run(hubDone)

	mgr := sessionmgr.New(store, hub, logger)
	registry := sessionmgr.NewRegistry()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go mgr.Run(sweepCtx, maxSessionAge)

	srv := sessionmgr.NewServer(mgr, registry, logger, cfg.APIKey)
	router := srv.Router()
	router.GET("/events", gin.WrapH(hub))

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("session manager listening", logging.F("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received, stopping session manager")
	stopSweep()
	close(hubDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", err)
		return 1
	}

	logger.Info("session manager stopped")
	return 0
}
