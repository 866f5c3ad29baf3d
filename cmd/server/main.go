package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashdeck/hashdeck/internal/archive"
	"github.com/hashdeck/hashdeck/internal/config"
	"github.com/hashdeck/hashdeck/internal/events"
	"github.com/hashdeck/hashdeck/internal/handlers/ws"
	"github.com/hashdeck/hashdeck/internal/hardware"
	"github.com/hashdeck/hashdeck/internal/potfile"
	"github.com/hashdeck/hashdeck/internal/registry"
	"github.com/hashdeck/hashdeck/internal/routes"
	"github.com/hashdeck/hashdeck/pkg/debug"
	"github.com/joho/godotenv"
)

func main() {
	debug.Reinitialize()

	if err := godotenv.Load(); err != nil {
		debug.Info("No .env file found, using environment variables")
	} else {
		debug.Info("Loaded configuration from .env")
	}
	debug.Reinitialize()

	cfg := config.NewConfig()

	shared, err := potfile.NewShared(cfg.SharedPotfilePath())
	if err != nil {
		debug.Error("Failed to open shared potfile: %v", err)
		os.Exit(1)
	}

	store, err := archive.Open(cfg.ArchivePath())
	if err != nil {
		debug.Error("Failed to open session archive: %v", err)
		os.Exit(1)
	}
	defer store.Close()
	store.StartRetention(time.Duration(cfg.ArchiveRetentionDays) * 24 * time.Hour)

	bus := events.NewBus()
	manager := registry.NewManager(cfg, shared, bus, store)

	poller := hardware.NewPoller(cfg.HardwarePoll, bus, manager)
	poller.Start()
	defer poller.Stop()

	wsHandler := ws.NewHandler(bus, manager)
	router := routes.NewRouter(cfg, manager, shared, store, wsHandler)

	server := &http.Server{
		Addr:         cfg.GetAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open
	}

	go func() {
		debug.Info("Listening on %s", cfg.GetAddress())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			debug.Error("Server failed: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	debug.Info("Shutting down...")

	// Ask every active worker to stop, then give finalization a moment so
	// finished events and archive rows are not lost.
	for _, view := range manager.List() {
		if err := manager.StopByID(view.ID); err != nil {
			debug.Warning("Failed to stop session %s: %v", view.ID, err)
		}
	}
	manager.WaitIdle(10 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		debug.Error("Server shutdown failed: %v", err)
	}
}
