package sqlite

import (
	"database/sql"
	"time"

	"github.com/retroplay/rom-cache/internal/domain"
)

const entryColumns = `rom_id, filename, platform, size_bytes, last_accessed,
	   download_time, priority_score, is_favorite`

// Stats returns aggregate accounting against the given size limit
func (s *Store) Stats(maxBytes int64) (domain.CacheStats, error) {
	var count int64
	var totalBytes sql.NullInt64

	err := s.db.QueryRow("SELECT COUNT(*), SUM(size_bytes) FROM cache_entries").
		Scan(&count, &totalBytes)
	if err != nil {
		return domain.CacheStats{}, err
	}

	return domain.ComputeStats(count, totalBytes.Int64, maxBytes), nil
}

// IsCached reports whether an index record exists for the ROM
func (s *Store) IsCached(romID string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM cache_entries WHERE rom_id = ?", romID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get retrieves an entry by ROM id
func (s *Store) Get(romID string) (*domain.CacheEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM cache_entries
		WHERE rom_id = ?
	`

	entry := &domain.CacheEntry{}
	err := s.db.QueryRow(query, romID).Scan(
		&entry.ROMID, &entry.Filename, &entry.Platform, &entry.SizeBytes,
		&entry.LastAccessed, &entry.DownloadTime, &entry.PriorityScore, &entry.IsFavorite,
	)

	if err == sql.ErrNoRows {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Upsert inserts or replaces an entry
func (s *Store) Upsert(entry *domain.CacheEntry) error {
	query := `
		INSERT OR REPLACE INTO cache_entries
		(rom_id, filename, platform, size_bytes, last_accessed,
		 download_time, priority_score, is_favorite)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(
		query,
		entry.ROMID, entry.Filename, entry.Platform, entry.SizeBytes,
		entry.LastAccessed, entry.DownloadTime, entry.PriorityScore, entry.IsFavorite,
	)
	return err
}

// Remove deletes an entry. Removing an absent id is not an error.
func (s *Store) Remove(romID string) error {
	_, err := s.db.Exec("DELETE FROM cache_entries WHERE rom_id = ?", romID)
	return err
}

// Touch sets the last accessed time. A miss is a no-op.
func (s *Store) Touch(romID string, now time.Time) error {
	query := `
		UPDATE cache_entries
		SET last_accessed = ?
		WHERE rom_id = ? AND last_accessed < ?
	`

	_, err := s.db.Exec(query, now, romID, now)
	return err
}

// SetFavorite flips the favorite flag. A miss is a no-op.
func (s *Store) SetFavorite(romID string, favorite bool) error {
	_, err := s.db.Exec("UPDATE cache_entries SET is_favorite = ? WHERE rom_id = ?", favorite, romID)
	return err
}

// List returns all entries ordered by last accessed, most recent first
func (s *Store) List() ([]*domain.CacheEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM cache_entries
		ORDER BY last_accessed DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

// EvictionCandidates returns all entries ordered ascending by priority
// score, oldest-touched first among equals
func (s *Store) EvictionCandidates() ([]*domain.CacheEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM cache_entries
		ORDER BY priority_score ASC, last_accessed ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

// scanEntries is a helper to scan multiple entry rows
func (s *Store) scanEntries(rows *sql.Rows) ([]*domain.CacheEntry, error) {
	var entries []*domain.CacheEntry

	for rows.Next() {
		entry := &domain.CacheEntry{}
		err := rows.Scan(
			&entry.ROMID, &entry.Filename, &entry.Platform, &entry.SizeBytes,
			&entry.LastAccessed, &entry.DownloadTime, &entry.PriorityScore, &entry.IsFavorite,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
