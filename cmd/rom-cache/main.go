package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/adapter/filesystem"
	"github.com/retroplay/rom-cache/internal/adapter/fswatch"
	"github.com/retroplay/rom-cache/internal/adapter/romserver"
	"github.com/retroplay/rom-cache/internal/adapter/sqlite"
	"github.com/retroplay/rom-cache/internal/config"
	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/link"
	"github.com/retroplay/rom-cache/internal/logger"
	"github.com/retroplay/rom-cache/internal/service/cache"
	"github.com/retroplay/rom-cache/internal/service/gamelist"
	"github.com/retroplay/rom-cache/internal/service/library"
	"github.com/retroplay/rom-cache/internal/service/maintenance"
	"github.com/retroplay/rom-cache/internal/service/pipeline"
	"github.com/retroplay/rom-cache/internal/service/server"
)

const version = "0.1.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting rom-cache",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Initialize blob store
	blobs, err := filesystem.NewManager(cfg.Cache.RootDir)
	if err != nil {
		zapLogger.Fatal("failed to create blob store", zap.Error(err))
	}

	// Open database
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Cache.RootDir, "cache.db")
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		zapLogger.Fatal("failed to open database", zap.Error(err), zap.String("path", dbPath))
	}
	defer store.Close()

	// Remote server clients and the exposed-tree link strategy
	source := romserver.NewClient(cfg.Watch.GetProbeTimeout())
	linker := link.NewManager(zapLogger)

	watcher, err := fswatch.Detect(zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create filesystem watcher", zap.Error(err))
	}
	defer watcher.Close()

	servers := buildServers(cfg.Servers)
	runtime := config.NewRuntime(cfg.Cache)

	// Core services
	evictor := cache.NewEvictor(store, blobs, runtime, zapLogger)
	coordinator := cache.NewCoordinator(store, blobs, source, evictor, runtime, zapLogger)
	pipe := pipeline.New(cfg.Cache.RomsDir, store, blobs, source, coordinator, linker, watcher, servers, zapLogger)

	libraryService := library.New(
		cfg.Cache.RomsDir,
		blobs,
		source,
		linker,
		servers,
		pipe.Fetch,
		cfg.Watch.GetListingRefreshInterval(),
		zapLogger,
	)

	maintenanceService := maintenance.New(maintenance.DefaultConfig(), store, blobs, zapLogger)

	exporter := gamelist.NewExporter(store, cfg.Cache.ESConfigDir, cfg.Watch.GetGamelistExportInterval(), zapLogger)

	// Create HTTP server
	serverCfg := &server.Config{
		BindAddr:     cfg.HTTP.BindAddr,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
	}
	httpServer := server.New(serverCfg, store, blobs, evictor, pipe, runtime, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start HTTP server
	go func() {
		if err := httpServer.Start(); err != nil {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Start fetch pipeline
	go func() {
		if err := pipe.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("fetch pipeline stopped with error", zap.Error(err))
		}
	}()

	// Start library sync
	go func() {
		if err := libraryService.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("library service stopped with error", zap.Error(err))
		}
	}()

	// Start maintenance service
	go func() {
		if err := maintenanceService.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	// Start gamelist exporter
	go func() {
		if err := exporter.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("gamelist exporter stopped with error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("cache_dir", cfg.Cache.RootDir),
		zap.String("roms_dir", cfg.Cache.RomsDir),
	)
	<-sigChan

	zapLogger.Info("shutdown signal received, stopping services...")

	// Cancel context to stop the background services
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	pipe.Stop()
	libraryService.Stop()
	maintenanceService.Stop()
	exporter.Stop()

	// Stop HTTP server
	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	zapLogger.Info("application stopped successfully")
}

func buildServers(configs []config.ServerConfig) []*domain.ROMServer {
	servers := make([]*domain.ROMServer, 0, len(configs))
	for _, sc := range configs {
		paths := sc.PlatformPaths
		if len(paths) == 0 {
			paths = domain.DefaultPlatformPaths()
		}
		servers = append(servers, &domain.ROMServer{
			Name:          sc.Name,
			BaseURL:       sc.BaseURL,
			AuthHeaders:   sc.AuthHeaders,
			PlatformPaths: paths,
		})
	}
	return servers
}
