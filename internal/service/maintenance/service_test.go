package maintenance

import (
	"errors"
	"io"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/port"
)

// memEntryStore implements port.EntryStore for reconciliation tests
type memEntryStore struct {
	entries map[string]*domain.CacheEntry
}

func newMemEntryStore() *memEntryStore {
	return &memEntryStore{entries: make(map[string]*domain.CacheEntry)}
}

func (m *memEntryStore) Stats(maxBytes int64) (domain.CacheStats, error) {
	return domain.CacheStats{}, nil
}

func (m *memEntryStore) IsCached(romID string) (bool, error) {
	_, ok := m.entries[romID]
	return ok, nil
}

func (m *memEntryStore) Get(romID string) (*domain.CacheEntry, error) {
	e, ok := m.entries[romID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return e, nil
}

func (m *memEntryStore) Upsert(entry *domain.CacheEntry) error {
	m.entries[entry.ROMID] = entry
	return nil
}

func (m *memEntryStore) Remove(romID string) error {
	delete(m.entries, romID)
	return nil
}

func (m *memEntryStore) Touch(romID string, now time.Time) error          { return nil }
func (m *memEntryStore) SetFavorite(romID string, favorite bool) error    { return nil }
func (m *memEntryStore) EvictionCandidates() ([]*domain.CacheEntry, error) { return nil, nil }
func (m *memEntryStore) Ping() error                                       { return nil }

func (m *memEntryStore) List() ([]*domain.CacheEntry, error) {
	out := make([]*domain.CacheEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ROMID < out[j].ROMID })
	return out, nil
}

// memBlobStore implements port.BlobStore against a map of blob sizes
type memBlobStore struct {
	sizes        map[string]int64 // rom id -> size
	tempsCleaned int
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{sizes: make(map[string]int64)}
}

func (m *memBlobStore) RootDir() string              { return "/cache" }
func (m *memBlobStore) BlobPath(romID string) string { return filepath.Join("/cache", romID) }
func (m *memBlobStore) TempPath(romID string) string {
	return filepath.Join("/cache", romID+".tmp.downloading")
}

func (m *memBlobStore) WriteTemp(tempPath string, reader io.Reader) (int64, error) {
	return 0, errors.New("not used")
}

func (m *memBlobStore) Commit(tempPath, blobPath string) error { return nil }

func (m *memBlobStore) Delete(path string) error {
	delete(m.sizes, filepath.Base(path))
	return nil
}

func (m *memBlobStore) Exists(path string) bool {
	_, ok := m.sizes[filepath.Base(path)]
	return ok
}

func (m *memBlobStore) FileSize(path string) (int64, error) {
	size, ok := m.sizes[filepath.Base(path)]
	if !ok {
		return 0, errors.New("file not found")
	}
	return size, nil
}

func (m *memBlobStore) ListBlobIDs() ([]string, error) {
	ids := make([]string, 0, len(m.sizes))
	for id := range m.sizes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memBlobStore) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	return m.tempsCleaned, nil
}

func (m *memBlobStore) DiskUsage() (*port.DiskUsage, error) {
	return &port.DiskUsage{}, nil
}

func TestReconcile_Consistent(t *testing.T) {
	entries := newMemEntryStore()
	blobs := newMemBlobStore()

	entries.Upsert(&domain.CacheEntry{ROMID: "nes_mario", SizeBytes: 100})
	blobs.sizes["nes_mario"] = 100

	s := New(DefaultConfig(), entries, blobs, zap.NewNop())
	records, orphans, err := s.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if records != 0 || orphans != 0 {
		t.Errorf("Reconcile() = (%d, %d), want (0, 0)", records, orphans)
	}
	if cached, _ := entries.IsCached("nes_mario"); !cached {
		t.Error("consistent entry was removed")
	}
}

func TestReconcile_DanglingRecord(t *testing.T) {
	entries := newMemEntryStore()
	blobs := newMemBlobStore()

	// Record without a blob: the index must not claim a ROM it cannot serve.
	entries.Upsert(&domain.CacheEntry{ROMID: "nes_ghost", SizeBytes: 100})

	s := New(DefaultConfig(), entries, blobs, zap.NewNop())
	records, orphans, err := s.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if records != 1 {
		t.Errorf("records removed = %d, want 1", records)
	}
	if orphans != 0 {
		t.Errorf("orphans removed = %d, want 0", orphans)
	}
	if cached, _ := entries.IsCached("nes_ghost"); cached {
		t.Error("dangling record survived reconciliation")
	}
}

func TestReconcile_SizeMismatch(t *testing.T) {
	entries := newMemEntryStore()
	blobs := newMemBlobStore()

	// Truncated blob: both sides go, a half-written ROM is worse than a miss.
	entries.Upsert(&domain.CacheEntry{ROMID: "nes_torn", SizeBytes: 100})
	blobs.sizes["nes_torn"] = 40

	s := New(DefaultConfig(), entries, blobs, zap.NewNop())
	records, _, err := s.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if records != 1 {
		t.Errorf("records removed = %d, want 1", records)
	}
	if cached, _ := entries.IsCached("nes_torn"); cached {
		t.Error("mismatched record survived")
	}
	if blobs.Exists(blobs.BlobPath("nes_torn")) {
		t.Error("mismatched blob survived")
	}
}

func TestReconcile_OrphanBlob(t *testing.T) {
	entries := newMemEntryStore()
	blobs := newMemBlobStore()

	blobs.sizes["nes_stray"] = 500

	s := New(DefaultConfig(), entries, blobs, zap.NewNop())
	_, orphans, err := s.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if orphans != 1 {
		t.Errorf("orphans removed = %d, want 1", orphans)
	}
	if blobs.Exists(blobs.BlobPath("nes_stray")) {
		t.Error("orphan blob survived")
	}
}

func TestReconcile_Mixed(t *testing.T) {
	entries := newMemEntryStore()
	blobs := newMemBlobStore()

	entries.Upsert(&domain.CacheEntry{ROMID: "nes_good", SizeBytes: 10})
	blobs.sizes["nes_good"] = 10
	entries.Upsert(&domain.CacheEntry{ROMID: "nes_ghost", SizeBytes: 20})
	blobs.sizes["nes_stray"] = 30

	s := New(DefaultConfig(), entries, blobs, zap.NewNop())
	records, orphans, err := s.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if records != 1 || orphans != 1 {
		t.Errorf("Reconcile() = (%d, %d), want (1, 1)", records, orphans)
	}
	if cached, _ := entries.IsCached("nes_good"); !cached {
		t.Error("healthy entry was removed")
	}
	if !blobs.Exists(blobs.BlobPath("nes_good")) {
		t.Error("healthy blob was removed")
	}
}
