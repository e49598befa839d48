// Command convoy runs the coordinator: the HTTP API, the monitor loop, the
// alert dispatcher, and the daily pruner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/convoy-ops/convoy/internal/actionstate"
	"github.com/convoy-ops/convoy/internal/alert"
	"github.com/convoy-ops/convoy/internal/api"
	"github.com/convoy-ops/convoy/internal/auth"
	"github.com/convoy-ops/convoy/internal/config"
	"github.com/convoy-ops/convoy/internal/execute"
	"github.com/convoy-ops/convoy/internal/listener"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/monitor"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/syncer"
	"github.com/convoy-ops/convoy/internal/updates"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "convoy:", err)
		os.Exit(1)
	}
}

func run() error {
	path, err := config.ConfigPath(flag.NewFlagSet("convoy", flag.ContinueOnError), os.Args[1:])
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(cfg.LogJSON, cfg.LogLevel)
	log.Info("starting convoy", "version", api.Version)

	db, err := store.OpenDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// Updates left InProgress by a previous process are dead.
	if n, err := db.FailStaleInProgress(time.Now()); err != nil {
		return err
	} else if n > 0 {
		log.Warn("failed stale in-progress updates", "count", n)
	}

	jwtProvider, err := auth.NewJWTProvider(cfg.JWTValid)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(db, jwtProvider)
	oauthHandler := auth.NewOAuthHandler(authSvc, cfg)

	state := actionstate.New()
	pipeline := updates.NewPipeline(db)
	dispatcher := alert.NewDispatcher(db, log)
	cache := monitor.NewStatusCache()

	executor := execute.New(db, cfg, authSvc, state, pipeline, log)
	syncs := syncer.New(db, cfg, executor, log)
	executor.SetSyncEngine(syncs)

	hooks := listener.New(db, executor, authSvc, cfg.WebhookSecret, log)

	server := api.NewServer(api.Deps{
		Config:     cfg,
		DB:         db,
		Auth:       authSvc,
		OAuth:      oauthHandler,
		Executor:   executor,
		Syncs:      syncs,
		State:      state,
		Cache:      cache,
		Dispatcher: dispatcher,
		Pipeline:   pipeline,
		Listener:   hooks,
		Log:        log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(db, cache, dispatcher, log, cfg.MonitoringInterval)
	go mon.Run(ctx)

	pruner := monitor.NewPruner(db, log, cfg.KeepStatsForDays, cfg.KeepAlertsForDays)
	if err := pruner.Start(ctx); err != nil {
		return err
	}
	defer pruner.Stop()

	return server.Run(ctx)
}
