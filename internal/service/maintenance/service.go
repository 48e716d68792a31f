package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// ReconcileInterval is how often to verify index and blob directory
	// agree with each other
	ReconcileInterval time.Duration

	// TempFileCleanupInterval is how often to sweep stale temp files
	TempFileCleanupInterval time.Duration

	// TempFileMaxAge is the age past which an in-flight temp file is
	// assumed abandoned
	TempFileMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		ReconcileInterval:       time.Hour,
		TempFileCleanupInterval: time.Hour,
		TempFileMaxAge:          24 * time.Hour,
	}
}

// Service repairs the crash window between blob writes and index updates
// and sweeps abandoned temp files.
type Service struct {
	config  *Config
	entries port.EntryStore
	blobs   port.BlobStore
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, entries port.EntryStore, blobs port.BlobStore, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = time.Hour
	}
	if cfg.TempFileCleanupInterval == 0 {
		cfg.TempFileCleanupInterval = time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}

	return &Service{
		config:  cfg,
		entries: entries,
		blobs:   blobs,
		logger:  logger,
	}
}

// Start runs one reconciliation immediately, then loops until ctx is done
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("reconcile_interval", s.config.ReconcileInterval),
		zap.Duration("temp_cleanup_interval", s.config.TempFileCleanupInterval))

	// A crash between blob write and index update leaves either an orphan
	// blob or a dangling record; repair before serving anything.
	if records, blobs, err := s.Reconcile(); err != nil {
		s.logger.Error("startup reconciliation failed", zap.Error(err))
	} else if records > 0 || blobs > 0 {
		s.logger.Info("startup reconciliation repaired state",
			zap.Int("records_removed", records),
			zap.Int("blobs_removed", blobs))
	}

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	reconcileTicker := time.NewTicker(s.config.ReconcileInterval)
	defer reconcileTicker.Stop()

	cleanupTicker := time.NewTicker(s.config.TempFileCleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-reconcileTicker.C:
			records, blobs, err := s.Reconcile()
			if err != nil {
				s.logger.Error("reconciliation failed", zap.Error(err))
			} else if records > 0 || blobs > 0 {
				s.logger.Info("reconciliation repaired state",
					zap.Int("records_removed", records),
					zap.Int("blobs_removed", blobs))
			}

		case <-cleanupTicker.C:
			count, err := s.blobs.CleanOldTempFiles(s.config.TempFileMaxAge)
			if err != nil {
				s.logger.Error("failed to clean old temp files", zap.Error(err))
			} else if count > 0 {
				s.logger.Info("cleaned up abandoned temp files", zap.Int("count", count))
			}
		}
	}
}

// Reconcile enforces the index/blob invariant: a record whose blob is
// missing or has the wrong size is dropped (with its blob), and a blob
// with no record is deleted. Returns counts of removed records and blobs.
func (s *Service) Reconcile() (int, int, error) {
	entries, err := s.entries.List()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list entries: %w", err)
	}

	recordsRemoved := 0
	indexed := make(map[string]bool, len(entries))

	for _, entry := range entries {
		blobPath := s.blobs.BlobPath(entry.ROMID)
		size, err := s.blobs.FileSize(blobPath)

		if err == nil && size == entry.SizeBytes {
			indexed[entry.ROMID] = true
			continue
		}

		if err == nil {
			s.logger.Warn("blob size mismatch, dropping entry",
				zap.String("rom_id", entry.ROMID),
				zap.Int64("recorded", entry.SizeBytes),
				zap.Int64("on_disk", size))
			if delErr := s.blobs.Delete(blobPath); delErr != nil {
				s.logger.Error("failed to delete mismatched blob",
					zap.String("rom_id", entry.ROMID), zap.Error(delErr))
			}
		} else {
			s.logger.Warn("blob missing, dropping entry",
				zap.String("rom_id", entry.ROMID))
		}

		if err := s.entries.Remove(entry.ROMID); err != nil {
			s.logger.Error("failed to remove dangling record",
				zap.String("rom_id", entry.ROMID), zap.Error(err))
			continue
		}
		recordsRemoved++
	}

	blobIDs, err := s.blobs.ListBlobIDs()
	if err != nil {
		return recordsRemoved, 0, fmt.Errorf("failed to list blobs: %w", err)
	}

	blobsRemoved := 0
	for _, id := range blobIDs {
		if indexed[id] {
			continue
		}
		if err := s.blobs.Delete(s.blobs.BlobPath(id)); err != nil {
			s.logger.Error("failed to delete orphan blob",
				zap.String("rom_id", id), zap.Error(err))
			continue
		}
		blobsRemoved++
	}

	return recordsRemoved, blobsRemoved, nil
}
