package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/config"
	"github.com/retroplay/rom-cache/internal/port"
	"github.com/retroplay/rom-cache/internal/service/cache"
	"github.com/retroplay/rom-cache/internal/service/pipeline"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "0.0.0.0:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server represents the HTTP API server
type Server struct {
	config       *Config
	entries      port.EntryStore
	logger       *zap.Logger
	server       *http.Server
	cacheHandler *CacheHandler
	romHandler   *ROMHandler
}

// New creates a new HTTP server
func New(
	cfg *Config,
	entries port.EntryStore,
	blobs port.BlobStore,
	evictor *cache.Evictor,
	pipe *pipeline.Pipeline,
	runtime *config.Runtime,
	logger *zap.Logger,
) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:  cfg,
		entries: entries,
		logger:  logger,
	}

	s.cacheHandler = NewCacheHandler(entries, blobs, evictor, runtime, logger)
	s.romHandler = NewROMHandler(entries, pipe, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/cache/stats", s.cacheHandler.HandleStats)
	mux.HandleFunc("/api/cache/config", s.cacheHandler.HandleConfig)
	mux.HandleFunc("/api/cache/cleanup", s.cacheHandler.HandleCleanup)

	mux.HandleFunc("/api/roms", s.romHandler.HandleList)
	mux.HandleFunc("/api/roms/download", s.romHandler.HandleDownload)
	mux.HandleFunc("/api/roms/", s.romHandler.HandleROM)

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.entries.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "Index connection failed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
