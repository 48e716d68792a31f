package domain

import "time"

// CacheEntry represents one cached ROM in the metadata index.
// An entry exists if and only if its blob file exists on disk with a
// matching size; the two are always mutated together.
type CacheEntry struct {
	ROMID         string
	Filename      string
	Platform      string
	SizeBytes     int64
	LastAccessed  time.Time
	DownloadTime  time.Time
	PriorityScore int
	IsFavorite    bool
}

// CacheStats represents aggregate cache accounting.
type CacheStats struct {
	TotalFiles    int64
	TotalBytes    int64
	MaxBytes      int64
	UsageFraction float64
	FreeBytes     int64
}

// ComputeStats derives the aggregate numbers from raw count/sum values.
// FreeBytes never goes negative; UsageFraction is 0 when maxBytes <= 0.
func ComputeStats(count, totalBytes, maxBytes int64) CacheStats {
	stats := CacheStats{
		TotalFiles: count,
		TotalBytes: totalBytes,
		MaxBytes:   maxBytes,
	}
	if maxBytes > 0 {
		stats.UsageFraction = float64(totalBytes) / float64(maxBytes)
	}
	if free := maxBytes - totalBytes; free > 0 {
		stats.FreeBytes = free
	}
	return stats
}

// Touch advances the access timestamp. LastAccessed never moves backwards.
func (e *CacheEntry) Touch(now time.Time) {
	if now.After(e.LastAccessed) {
		e.LastAccessed = now
	}
}
