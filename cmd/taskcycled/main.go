package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskcycle/internal/api"
	"taskcycle/internal/config"
	"taskcycle/internal/core"
	"taskcycle/internal/logging"
	taskcyclemcp "taskcycle/internal/mcp"
	"taskcycle/internal/notify"
	"taskcycle/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.Log.Level)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	location := time.Local
	if cfg.UseUTC {
		location = time.UTC
	}

	var notifier core.Notifier
	if cfg.Notification.Bark.Enabled {
		bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
		if err != nil {
			logger.Error("configure bark notifier", "err", err)
			os.Exit(1)
		}
		notifier = bark
	}

	clock := core.SystemClock()
	manager := core.NewManager(storeInst, clock, logger)
	facade := core.NewFacade(manager, storeInst, clock, logger)
	sweeper := core.NewSweeper(manager, storeInst, clock, notifier, logger, location)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	sweeper.Start(ctx, cfg.SweepInterval)
	sweeper.Sweep(ctx)

	// Run based on mode
	switch cfg.Mode {
	case "http", "":
		runHTTPMode(cfg, facade, clock, sweeper, logger, location, cancel)
	case "mcp":
		runMCPMode(facade, sweeper, logger, location, cancel)
	case "both":
		runBothMode(cfg, facade, clock, sweeper, logger, location, cancel)
	default:
		logger.Error("invalid mode", "mode", cfg.Mode, "valid", []string{"http", "mcp", "both"})
		os.Exit(1)
	}
}

// runHTTPMode starts only the HTTP server.
func runHTTPMode(cfg *config.Config, facade *core.Facade, clock core.Clock, sweeper *core.Sweeper, logger *slog.Logger, location *time.Location, cancel context.CancelFunc) {
	server, err := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, facade, clock, logger, location)
	if err != nil {
		logger.Error("create server", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	cancel()

	stopCtx := sweeper.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownGrace):
		logger.Warn("sweeper stop timed out")
	}
}

// runMCPMode starts only the MCP server.
func runMCPMode(facade *core.Facade, sweeper *core.Sweeper, logger *slog.Logger, location *time.Location, cancel context.CancelFunc) {
	mcpServer := taskcyclemcp.NewMCPServer(facade, logger, location)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("received signal, shutting down...")
		sweeper.Stop()
		cancel()
	}()

	// Run MCP server (blocking)
	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBothMode starts both HTTP and MCP servers.
func runBothMode(cfg *config.Config, facade *core.Facade, clock core.Clock, sweeper *core.Sweeper, logger *slog.Logger, location *time.Location, cancel context.CancelFunc) {
	// Start MCP server in background
	mcpServer := taskcyclemcp.NewMCPServer(facade, logger, location)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	// Start HTTP server
	server, err := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, facade, clock, logger, location)
	if err != nil {
		logger.Error("create server", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	cancel()

	stopCtx := sweeper.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownGrace):
		logger.Warn("sweeper stop timed out")
	}

	// Note: MCP server terminates when the process exits
	logger.Info("shutdown complete")
}
