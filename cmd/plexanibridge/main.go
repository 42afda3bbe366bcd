// Command plexanibridge is the sync service: it loads the
// configuration document, opens the mappings database, wires the
// runtime composition root, and serves the control/webhook HTTP
// surface until interrupted. A gin-plus-graceful-shutdown entrypoint
// over the embedded-sqlite runtime, not a pgx/gorm-backed service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"plexanibridge/internal/config"
	"plexanibridge/internal/logging"
	"plexanibridge/internal/mapping"
	"plexanibridge/internal/runtime"
	"plexanibridge/internal/scheduler"
	"plexanibridge/internal/webhookapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "plexanibridge:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the configuration document")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Options{Level: cfg.Global.LogLevel, Format: cfg.Global.LogFormat})

	if err := os.MkdirAll(cfg.Global.DataPath, 0o755); err != nil {
		return fmt.Errorf("create data path: %w", err)
	}

	mappingStore, err := mapping.Open(filepath.Join(cfg.Global.DataPath, "anibridge.db"))
	if err != nil {
		return fmt.Errorf("open mappings store: %w", err)
	}
	defer mappingStore.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := runtime.New(ctx, cfg, mappingStore, logger)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	rt.Start(ctx)
	defer rt.Shutdown()

	go rt.RunBackupSchedule(ctx)

	dbSync := scheduler.NewDBSyncJob(
		mappingStore,
		scheduler.NewRemoteMappingSource(cfg.Global.MappingsURL, filepath.Join(cfg.Global.DataPath, "mappings.custom.yaml")),
		time.Duration(cfg.Global.DBSyncIntervalHours)*time.Hour,
		logger,
	)
	go dbSync.Run(ctx)

	issuer := webhookapi.NewTokenIssuer(cfg.Global.JWTSecret)
	hub := webhookapi.NewHub(rt.Bus(), logger)
	webhookSecrets := make(map[string]string, len(cfg.Profiles))
	for name, profile := range cfg.Profiles {
		webhookSecrets[name] = profile.WebhookSecret
	}
	server := webhookapi.NewServer(rt, issuer, hub, webhookSecrets, logger)

	httpServer := &http.Server{
		Addr:         cfg.Global.ListenAddr,
		Handler:      server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Global.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
