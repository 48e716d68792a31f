package cache

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/config"
	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/port"
)

// Evictor decides which entries to remove to satisfy a free-space target.
type Evictor struct {
	entries port.EntryStore
	blobs   port.BlobStore
	runtime *config.Runtime
	logger  *zap.Logger
}

// NewEvictor creates a new Evictor
func NewEvictor(entries port.EntryStore, blobs port.BlobStore, runtime *config.Runtime, logger *zap.Logger) *Evictor {
	return &Evictor{
		entries: entries,
		blobs:   blobs,
		runtime: runtime,
		logger:  logger,
	}
}

// Score computes an entry's priority at ingestion time. The score is not
// recomputed afterwards; recency decay only matters relative to the moment
// the entry went in.
func (e *Evictor) Score(entry *domain.CacheEntry, now time.Time) int {
	settings := e.runtime.Snapshot()
	return scoreEntry(entry, settings.PlatformWeight(entry.Platform), now)
}

func scoreEntry(entry *domain.CacheEntry, platformWeight int, now time.Time) int {
	score := platformWeight * 10

	hoursSinceAccess := now.Sub(entry.LastAccessed).Hours()
	if hoursSinceAccess < 24 {
		score += 50
	} else if hoursSinceAccess < 168 {
		score += 20
	}

	if entry.IsFavorite {
		score += 100
	}

	switch {
	case entry.SizeBytes < 100*1024*1024:
		score += 10
	case entry.SizeBytes > 5*(1<<30):
		score -= 10
	}

	return score
}

// NeedsCleanup reports whether usage has crossed the cleanup threshold
func (e *Evictor) NeedsCleanup() (bool, error) {
	settings := e.runtime.Snapshot()
	stats, err := e.entries.Stats(settings.MaxBytes())
	if err != nil {
		return false, err
	}
	return stats.UsageFraction > settings.CleanupThreshold, nil
}

// Cleanup removes lowest-value entries until targetFreeGB of cache space is
// available. A non-positive target uses the configured minimum free space.
// force bypasses favorite protection. Returns the removed ROM ids.
func (e *Evictor) Cleanup(ctx context.Context, targetFreeGB float64, force bool) ([]string, error) {
	settings := e.runtime.Snapshot()
	if targetFreeGB <= 0 {
		targetFreeGB = settings.MinFreeSpaceGB
	}

	stats, err := e.entries.Stats(settings.MaxBytes())
	if err != nil {
		return nil, err
	}

	currentFreeGB := float64(stats.FreeBytes) / float64(1<<30)
	bytesToFree := int64((targetFreeGB - currentFreeGB) * float64(1<<30))
	if bytesToFree <= 0 {
		return nil, nil
	}

	candidates, err := e.entries.EvictionCandidates()
	if err != nil {
		return nil, err
	}

	var removed []string
	var freedBytes int64

	for _, entry := range candidates {
		select {
		case <-ctx.Done():
			return removed, ctx.Err()
		default:
		}

		if entry.IsFavorite && settings.FavoriteProtection && !force {
			continue
		}

		// Blob first, then record: a record pointing at a deleted blob is
		// repaired by reconciliation, an unindexed blob would just leak.
		if err := e.blobs.Delete(e.blobs.BlobPath(entry.ROMID)); err != nil {
			e.logger.Error("failed to delete blob during eviction",
				zap.String("rom_id", entry.ROMID),
				zap.Error(err))
			continue
		}
		if err := e.entries.Remove(entry.ROMID); err != nil {
			e.logger.Error("failed to remove index record during eviction",
				zap.String("rom_id", entry.ROMID),
				zap.Error(err))
			continue
		}

		freedBytes += entry.SizeBytes
		removed = append(removed, entry.ROMID)

		e.logger.Debug("entry evicted",
			zap.String("rom_id", entry.ROMID),
			zap.Int("priority_score", entry.PriorityScore),
			zap.Int64("size_bytes", entry.SizeBytes))

		if freedBytes >= bytesToFree {
			break
		}
	}

	e.logger.Info("eviction completed",
		zap.Int("evicted_count", len(removed)),
		zap.String("freed", humanize.IBytes(uint64(freedBytes))),
		zap.String("requested", humanize.IBytes(uint64(bytesToFree))))

	return removed, nil
}
