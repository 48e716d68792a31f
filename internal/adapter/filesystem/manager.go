package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retroplay/rom-cache/internal/port"
)

const tempSuffix = ".downloading"

// Manager handles the on-disk blob directory
type Manager struct {
	rootDir    string
	bufferSize int
}

// Ensure Manager implements port.BlobStore
var _ port.BlobStore = (*Manager)(nil)

// NewManager creates a new blob store rooted at rootDir
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 8*1024*1024)
}

// NewManagerWithBufferSize creates a new blob store with a custom copy buffer
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 8 * 1024 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the cache root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// BlobPath returns the deterministic blob path for a ROM id
func (m *Manager) BlobPath(romID string) string {
	return filepath.Join(m.rootDir, romID)
}

// TempPath returns a fresh unique temporary path for an in-flight download.
// The uuid component keeps concurrent ingests from ever colliding on disk.
func (m *Manager) TempPath(romID string) string {
	return filepath.Join(m.rootDir, romID+"."+uuid.NewString()+tempSuffix)
}

// WriteTemp streams reader contents to the temporary path
func (m *Manager) WriteTemp(tempPath string, reader io.Reader) (int64, error) {
	f, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	if err != nil {
		f.Close()
		return written, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return written, fmt.Errorf("failed to close temp file: %w", err)
	}

	return written, nil
}

// Commit atomically renames a fully-written temp file to its blob path
func (m *Manager) Commit(tempPath, blobPath string) error {
	if err := os.Rename(tempPath, blobPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Delete removes a blob or temp file. Missing files are not an error.
func (m *Manager) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists reports whether a file exists at path
func (m *Manager) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileSize returns the on-disk size of a blob
func (m *Manager) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ListBlobIDs returns the ROM ids of all blob files currently on disk.
// Temp files, the index database, and hidden files are not blobs.
func (m *Manager) ListBlobIDs() ([]string, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, tempSuffix) {
			continue
		}
		if strings.HasSuffix(name, ".db") || strings.Contains(name, ".db-") {
			continue
		}
		ids = append(ids, name)
	}
	return ids, nil
}

// CleanOldTempFiles removes temp files older than the specified age
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, tempSuffix) {
			return nil
		}
		if info.ModTime().Before(threshold) {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}
