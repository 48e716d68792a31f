package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/config"
	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/port"
)

// FetchRequest identifies one asset to ingest and the server resolved to
// supply it.
type FetchRequest struct {
	ROMID    string
	Filename string
	Platform string
	Server   *domain.ROMServer
}

// handle marks a download in flight for one ROM id. Joiners block on done
// and read err afterwards; err is written exactly once before done closes.
type handle struct {
	done chan struct{}
	err  error
}

// Coordinator ingests each asset exactly once regardless of how many
// callers ask for it concurrently.
type Coordinator struct {
	entries port.EntryStore
	blobs   port.BlobStore
	source  port.SourceClient
	evictor *Evictor
	runtime *config.Runtime
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[string]*handle
}

// NewCoordinator creates a new download Coordinator
func NewCoordinator(
	entries port.EntryStore,
	blobs port.BlobStore,
	source port.SourceClient,
	evictor *Evictor,
	runtime *config.Runtime,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		entries:  entries,
		blobs:    blobs,
		source:   source,
		evictor:  evictor,
		runtime:  runtime,
		logger:   logger,
		inflight: make(map[string]*handle),
	}
}

// FetchOrJoin downloads the ROM, or joins a download already in flight for
// the same id and returns its outcome. The check-and-insert on the handle
// registry is the only step under the mutex; the transfer runs outside it.
//
// A joiner whose ctx expires gets ctx.Err() without disturbing the
// download; later joiners may still see it complete.
func (c *Coordinator) FetchOrJoin(ctx context.Context, req FetchRequest) error {
	c.mu.Lock()
	if h, ok := c.inflight[req.ROMID]; ok {
		c.mu.Unlock()
		select {
		case <-h.done:
			return h.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h := &handle{done: make(chan struct{})}
	c.inflight[req.ROMID] = h
	c.mu.Unlock()

	err := c.download(req)

	h.err = err
	c.mu.Lock()
	delete(c.inflight, req.ROMID)
	c.mu.Unlock()
	close(h.done)

	return err
}

// Downloading reports whether a download is currently in flight for the id.
func (c *Coordinator) Downloading(romID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[romID]
	return ok
}

// download performs the single network transfer and atomic ingestion.
// The transfer deliberately runs under a background context: joined
// waiters with deadlines abandon the wait, not the download.
func (c *Coordinator) download(req FetchRequest) error {
	settings := c.runtime.Snapshot()

	if need, err := c.evictor.NeedsCleanup(); err != nil {
		return err
	} else if need {
		if _, err := c.evictor.Cleanup(context.Background(), 0, false); err != nil {
			c.logger.Warn("proactive cleanup failed",
				zap.String("rom_id", req.ROMID),
				zap.Error(err))
		}
	}

	body, advertised, err := c.source.Fetch(context.Background(), req.Server, req.Platform, req.Filename)
	if err != nil {
		return err
	}
	defer body.Close()

	// The advertised length is a pre-flight hint only; zero or absent
	// never aborts the transfer.
	if advertised > 0 {
		if err := c.ensureSpace(advertised, settings); err != nil {
			return err
		}
	}

	tempPath := c.blobs.TempPath(req.ROMID)
	written, err := c.blobs.WriteTemp(tempPath, body)
	if err != nil {
		c.blobs.Delete(tempPath)
		return fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}

	blobPath := c.blobs.BlobPath(req.ROMID)
	if err := c.blobs.Commit(tempPath, blobPath); err != nil {
		c.blobs.Delete(tempPath)
		return err
	}

	now := time.Now()
	entry := &domain.CacheEntry{
		ROMID:        req.ROMID,
		Filename:     req.Filename,
		Platform:     req.Platform,
		SizeBytes:    written,
		LastAccessed: now,
		DownloadTime: now,
	}
	entry.PriorityScore = c.evictor.Score(entry, now)

	if err := c.entries.Upsert(entry); err != nil {
		c.blobs.Delete(blobPath)
		return fmt.Errorf("index update failed: %w", err)
	}

	c.logger.Info("rom cached",
		zap.String("rom_id", req.ROMID),
		zap.String("platform", req.Platform),
		zap.String("size", humanize.IBytes(uint64(written))),
		zap.Int("priority_score", entry.PriorityScore))

	return nil
}

// ensureSpace verifies the advertised size fits in the cache, evicting if
// necessary.
func (c *Coordinator) ensureSpace(advertised int64, settings *config.Settings) error {
	stats, err := c.entries.Stats(settings.MaxBytes())
	if err != nil {
		return err
	}
	if advertised <= stats.FreeBytes {
		return nil
	}

	requiredGB := float64(advertised) / float64(1<<30)
	if _, err := c.evictor.Cleanup(context.Background(), requiredGB+settings.MinFreeSpaceGB, false); err != nil {
		c.logger.Warn("pre-flight cleanup failed", zap.Error(err))
	}

	stats, err = c.entries.Stats(settings.MaxBytes())
	if err != nil {
		return err
	}
	if advertised > stats.FreeBytes {
		return fmt.Errorf("%w: need %s but only %s free",
			domain.ErrInsufficientSpace,
			humanize.IBytes(uint64(advertised)),
			humanize.IBytes(uint64(stats.FreeBytes)))
	}
	return nil
}
