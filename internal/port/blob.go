package port

import (
	"io"
	"time"
)

// DiskUsage represents disk usage statistics for the cache volume.
type DiskUsage struct {
	Total   uint64
	Used    uint64
	Free    uint64
	UsedPct float64
}

// BlobStore handles the on-disk blob directory. Blobs are written to a
// temporary path and atomically renamed into place so no reader ever
// observes a partially-written blob.
type BlobStore interface {
	// RootDir returns the cache root directory.
	RootDir() string

	// BlobPath returns the deterministic blob path for a ROM id.
	BlobPath(romID string) string

	// TempPath returns a fresh, unique temporary path inside the cache
	// directory for an in-flight download of the ROM.
	TempPath(romID string) string

	// WriteTemp streams reader contents to the temporary path and returns
	// the byte count written.
	WriteTemp(tempPath string, reader io.Reader) (int64, error)

	// Commit atomically renames a fully-written temp file to its blob path.
	Commit(tempPath, blobPath string) error

	// Delete removes a blob or temp file. Missing files are not an error.
	Delete(path string) error

	// Exists reports whether a file exists at path.
	Exists(path string) bool

	// FileSize returns the on-disk size of a blob.
	FileSize(path string) (int64, error)

	// ListBlobIDs returns the ROM ids of all blob files currently on disk,
	// excluding in-flight temp files.
	ListBlobIDs() ([]string, error)

	// CleanOldTempFiles removes temp files older than the given age and
	// returns the number deleted.
	CleanOldTempFiles(olderThan time.Duration) (int, error)

	// DiskUsage returns usage statistics for the volume holding the cache.
	DiskUsage() (*DiskUsage, error)
}
