package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/port"
	"github.com/retroplay/rom-cache/internal/util/ratelimiter"
)

// FetchFunc ingests one ROM through the fetch pipeline.
type FetchFunc func(ctx context.Context, platform, filename string) error

// Service populates the exposed tree: one placeholder link per ROM the
// configured servers advertise, pointing at the blob path whether or not
// the blob exists yet. Those dangling links are the trigger surface the
// fetch pipeline watches.
type Service struct {
	romsDir string
	blobs   port.BlobStore
	source  port.SourceClient
	linker  port.Linker
	servers []*domain.ROMServer
	fetch   FetchFunc
	limiter *ratelimiter.Limiter
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new library Service. refreshInterval bounds how often a
// server's platform listing is re-fetched.
func New(
	romsDir string,
	blobs port.BlobStore,
	source port.SourceClient,
	linker port.Linker,
	servers []*domain.ROMServer,
	fetch FetchFunc,
	refreshInterval time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		romsDir: romsDir,
		blobs:   blobs,
		source:  source,
		linker:  linker,
		servers: servers,
		fetch:   fetch,
		limiter: ratelimiter.New(refreshInterval),
		logger:  logger,
	}
}

// Start runs an initial sync and then refreshes listings periodically
// until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("library service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := os.MkdirAll(s.romsDir, 0755); err != nil {
		return fmt.Errorf("failed to create roms dir: %w", err)
	}

	s.SyncAll(ctx)

	s.wg.Add(1)
	go s.refreshLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("library service stopped")
	return nil
}

// Stop stops the service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.limiter.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncAll(ctx)
		}
	}
}

// SyncAll refreshes every server/platform listing, subject to the per-key
// rate limit, and creates missing placeholder links.
func (s *Service) SyncAll(ctx context.Context) {
	for _, server := range s.servers {
		for platform := range server.PlatformPaths {
			select {
			case <-ctx.Done():
				return
			default:
			}

			key := server.Name + "/" + platform
			if allowed, _ := s.limiter.Allow(key); !allowed {
				continue
			}

			if err := s.syncPlatform(ctx, server, platform); err != nil {
				s.logger.Error("platform sync failed",
					zap.String("server", server.Name),
					zap.String("platform", platform),
					zap.Error(err))
			}
		}
	}
}

// syncPlatform creates placeholder links for one server's platform listing.
func (s *Service) syncPlatform(ctx context.Context, server *domain.ROMServer, platform string) error {
	files, err := s.source.List(ctx, server, platform)
	if err != nil {
		return err
	}

	platformDir := filepath.Join(s.romsDir, platform)
	if err := os.MkdirAll(platformDir, 0755); err != nil {
		return err
	}

	created := 0
	for _, file := range files {
		target := filepath.Join(platformDir, file.Name)

		// Existing entries, dangling links included, are left alone.
		if _, err := os.Lstat(target); err == nil {
			continue
		}

		romID := domain.ROMIDFor(platform, file.Name)
		if err := s.linker.Create(s.blobs.BlobPath(romID), target); err != nil {
			s.logger.Warn("failed to create placeholder link",
				zap.String("target", target),
				zap.Error(err))
			continue
		}
		created++
	}

	if created > 0 {
		s.logger.Info("platform listing synced",
			zap.String("server", server.Name),
			zap.String("platform", platform),
			zap.Int("links_created", created),
			zap.Int("listed", len(files)))
	}
	return nil
}

// Preload ingests up to count listed ROMs for a platform ahead of any
// access, using the first server that carries the platform.
func (s *Service) Preload(ctx context.Context, platform string, count int) error {
	var server *domain.ROMServer
	for _, candidate := range s.servers {
		if candidate.HasPlatform(platform) {
			server = candidate
			break
		}
	}
	if server == nil {
		return fmt.Errorf("no configured server carries platform %s", platform)
	}

	files, err := s.source.List(ctx, server, platform)
	if err != nil {
		return err
	}
	if count < len(files) {
		files = files[:count]
	}

	for _, file := range files {
		if err := s.fetch(ctx, platform, file.Name); err != nil {
			s.logger.Warn("preload failed",
				zap.String("platform", platform),
				zap.String("filename", file.Name),
				zap.Error(err))
		}
	}
	return nil
}
