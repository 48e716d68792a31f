package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/port"
	"github.com/retroplay/rom-cache/internal/service/cache"
)

// Pipeline bridges passive filesystem access into active fetches. The
// consumer browses the exposed tree normally and never learns that assets
// are fetched lazily.
type Pipeline struct {
	romsDir     string
	entries     port.EntryStore
	blobs       port.BlobStore
	source      port.SourceClient
	coordinator *cache.Coordinator
	linker      port.Linker
	watcher     port.AccessWatcher
	servers     []*domain.ROMServer
	logger      *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new fetch Pipeline
func New(
	romsDir string,
	entries port.EntryStore,
	blobs port.BlobStore,
	source port.SourceClient,
	coordinator *cache.Coordinator,
	linker port.Linker,
	watcher port.AccessWatcher,
	servers []*domain.ROMServer,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		romsDir:     romsDir,
		entries:     entries,
		blobs:       blobs,
		source:      source,
		coordinator: coordinator,
		linker:      linker,
		watcher:     watcher,
		servers:     servers,
		logger:      logger,
	}
}

// Start begins watching the exposed tree and blocks until ctx is done.
// Each event is handled on its own goroutine so handling never stalls the
// watcher's delivery channel.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pipeline already running")
	}
	p.running = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	if err := p.watcher.Watch(p.romsDir); err != nil {
		return fmt.Errorf("failed to watch roms dir: %w", err)
	}

	p.logger.Info("fetch pipeline started", zap.String("roms_dir", p.romsDir))

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			p.logger.Info("fetch pipeline stopped")
			return nil

		case event, ok := <-p.watcher.Events():
			if !ok {
				p.wg.Wait()
				return nil
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.handleAccess(ctx, event.Path)
			}()

		case err, ok := <-p.watcher.Errors():
			if !ok {
				p.wg.Wait()
				return nil
			}
			p.logger.Error("watcher error", zap.Error(err))
		}
	}
}

// Stop stops the pipeline
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	p.running = false
}

// handleAccess drives one access event: touch on a hit, fetch on a miss.
func (p *Pipeline) handleAccess(ctx context.Context, exposedPath string) {
	platform, filename, ok := p.splitExposedPath(exposedPath)
	if !ok {
		return
	}

	romID := domain.ROMIDFor(platform, filename)

	cached, err := p.entries.IsCached(romID)
	if err != nil {
		p.logger.Error("cache lookup failed", zap.String("rom_id", romID), zap.Error(err))
		return
	}
	if cached {
		// Fast path: no network, no coordinator.
		if err := p.entries.Touch(romID, time.Now()); err != nil {
			p.logger.Warn("failed to touch entry", zap.String("rom_id", romID), zap.Error(err))
		}
		return
	}

	if err := p.fetch(ctx, platform, filename, exposedPath); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			p.logger.Warn("rom not found on any server",
				zap.String("rom_id", romID),
				zap.String("platform", platform))
		case errors.Is(err, context.Canceled):
		default:
			p.logger.Error("fetch failed",
				zap.String("rom_id", romID),
				zap.Error(err))
		}
	}
}

// Fetch resolves a source for the ROM and ingests it through the
// coordinator, then refreshes the exposed path for strategies that need
// it. Also used by the API layer for explicit download requests.
func (p *Pipeline) Fetch(ctx context.Context, platform, filename string) error {
	target := filepath.Join(p.romsDir, platform, filename)
	return p.fetch(ctx, platform, filename, target)
}

func (p *Pipeline) fetch(ctx context.Context, platform, filename, exposedPath string) error {
	romID := domain.ROMIDFor(platform, filename)

	server, err := p.resolveServer(ctx, platform, filename)
	if err != nil {
		return err
	}

	req := cache.FetchRequest{
		ROMID:    romID,
		Filename: filename,
		Platform: platform,
		Server:   server,
	}
	if err := p.coordinator.FetchOrJoin(ctx, req); err != nil {
		return err
	}

	// Links reflect the blob transparently; copies need the bytes pushed
	// to the path the consumer is looking at. That path is exactly the
	// one the watcher observed.
	if err := p.linker.Refresh(p.blobs.BlobPath(romID), exposedPath); err != nil {
		p.logger.Warn("failed to refresh exposed path",
			zap.String("path", exposedPath),
			zap.Error(err))
	}
	return nil
}

// Downloading reports whether a fetch is in flight for the exposed file.
func (p *Pipeline) Downloading(platform, filename string) bool {
	return p.coordinator.Downloading(domain.ROMIDFor(platform, filename))
}

// resolveServer probes configured servers in order; the first one that
// answers OK for the candidate URL wins.
func (p *Pipeline) resolveServer(ctx context.Context, platform, filename string) (*domain.ROMServer, error) {
	for _, server := range p.servers {
		if !server.HasPlatform(platform) {
			continue
		}

		found, err := p.source.Probe(ctx, server, platform, filename)
		if err != nil {
			p.logger.Debug("probe failed",
				zap.String("server", server.Name),
				zap.String("platform", platform),
				zap.String("filename", filename),
				zap.Error(err))
			continue
		}
		if found {
			return server, nil
		}
	}
	return nil, domain.ErrNotFound
}

// splitExposedPath extracts platform and filename from an exposed path of
// the form <romsDir>/<platform>/<filename>. Anything else, including temp
// files, is not a trigger.
func (p *Pipeline) splitExposedPath(exposedPath string) (platform, filename string, ok bool) {
	rel, err := filepath.Rel(p.romsDir, exposedPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", "", false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return "", "", false
	}
	if strings.HasPrefix(parts[1], ".") || strings.HasSuffix(parts[1], ".downloading") {
		return "", "", false
	}
	return parts[0], parts[1], true
}
