package port

import (
	"time"

	"github.com/retroplay/rom-cache/internal/domain"
)

// EntryStore is the authoritative mapping from ROM id to cache entry.
// Every mutating operation is a single atomic statement against the index;
// no operation partially updates multiple entries.
type EntryStore interface {
	// Stats returns aggregate accounting against the given size limit.
	Stats(maxBytes int64) (domain.CacheStats, error)

	// IsCached reports whether an index record exists for the ROM.
	// The index, not blob existence, is authoritative: an orphan blob left
	// by a crash must not count as cached.
	IsCached(romID string) (bool, error)

	// Get returns the entry, or domain.ErrEntryNotFound.
	Get(romID string) (*domain.CacheEntry, error)

	// Upsert inserts or replaces the entry.
	Upsert(entry *domain.CacheEntry) error

	// Remove deletes the index record. Removing an absent id is not an error.
	Remove(romID string) error

	// Touch sets lastAccessed. A miss is a no-op, not an error.
	Touch(romID string, now time.Time) error

	// SetFavorite flips the favorite flag. A miss is a no-op, not an error.
	SetFavorite(romID string, favorite bool) error

	// List returns all entries ordered by lastAccessed, most recent first.
	// The result is a finite snapshot recomputed on each call.
	List() ([]*domain.CacheEntry, error)

	// EvictionCandidates returns all entries ordered ascending by priority
	// score, ties broken by ascending lastAccessed.
	EvictionCandidates() ([]*domain.CacheEntry, error)

	// Ping checks index connectivity.
	Ping() error
}
