// Package main is the entry point for the pmengine service.
// It builds the message engine, restores its persisted mode and serves the
// admin API until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pmengine/internal/api"
	"pmengine/internal/banner"
	"pmengine/internal/config"
	"pmengine/internal/control"
	"pmengine/internal/engine"
	"pmengine/internal/store"
	memorystor "pmengine/internal/store/memory"
	postgresstor "pmengine/internal/store/postgres"
	redisstor "pmengine/internal/store/redis"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	banner.Print(os.Stdout)

	logger.Info("configuration loaded",
		"path", *configPath,
		"storage_mode", cfg.Storage.Mode,
	)

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize dependencies based on storage mode
	deps, cleanup, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Bring the engine back to its last selected mode
	if err := deps.control.Restore(ctx); err != nil {
		logger.Error("failed to restore mode", "error", err)
	}

	// Start HTTP server
	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("pmengine started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
		"high_priority", deps.engine.HighPriorityMode(),
	)

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("pmengine stopped", "pending_messages", deps.engine.Len())
}

// dependencies holds all initialized service dependencies.
type dependencies struct {
	engine  *engine.Engine
	control *control.Service
	server  *api.Server
}

// initDependencies creates and wires all service dependencies based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		modeStore    store.ModeStore
		switchRepo   store.SwitchRepository
		cleanupFuncs []func()
	)

	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	if cfg.Storage.UseMemory() {
		logger.Info("initializing in-memory storage")

		memModeStore := memorystor.NewModeStore()
		modeStore = memModeStore
		cleanupFuncs = append(cleanupFuncs, func() { _ = memModeStore.Close() })

		switchRepo = memorystor.NewSwitchRepository()
	} else {
		logger.Info("initializing production storage",
			"mode_backend", cfg.Storage.ModeBackend,
		)

		// Initialize PostgreSQL
		db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, db.Close)

		// Run migrations
		if err := db.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("database migrations completed")

		switchRepo = postgresstor.NewSwitchRepository(db)

		if cfg.Storage.ModeBackend == "postgres" {
			modeStore = postgresstor.NewModeStore(db)
		} else {
			// Initialize Redis
			redisStore, err := redisstor.NewModeStore(&cfg.Redis)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			modeStore = redisStore
			cleanupFuncs = append(cleanupFuncs, func() { _ = redisStore.Close() })
		}
	}

	eng := engine.New(logger,
		engine.WithDefaultTimeout(cfg.Engine.DefaultTimeout),
		engine.WithCapacity(cfg.Engine.Capacity),
		engine.WithHighPriorityMode(cfg.Engine.HighPriority),
	)

	controlService := control.NewService(eng, modeStore, switchRepo, logger)

	// Initialize HTTP server
	server := api.NewServer(api.ServerDeps{
		Config:       &cfg.Server,
		Logger:       logger,
		ModeHandler:  api.NewModeHandler(controlService, cfg.Engine.SwitchTimeout, logger),
		StatsHandler: api.NewStatsHandler(controlService),
	})

	return &dependencies{
		engine:  eng,
		control: controlService,
		server:  server,
	}, cleanup, nil
}
