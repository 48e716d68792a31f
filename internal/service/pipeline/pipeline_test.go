package pipeline

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/config"
	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/port"
	"github.com/retroplay/rom-cache/internal/service/cache"
)

// fakeEntryStore implements port.EntryStore with just enough state for
// pipeline tests
type fakeEntryStore struct {
	mu      sync.Mutex
	entries map[string]*domain.CacheEntry
	touched map[string]time.Time
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{
		entries: make(map[string]*domain.CacheEntry),
		touched: make(map[string]time.Time),
	}
}

func (f *fakeEntryStore) Stats(maxBytes int64) (domain.CacheStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, e := range f.entries {
		total += e.SizeBytes
	}
	return domain.ComputeStats(int64(len(f.entries)), total, maxBytes), nil
}

func (f *fakeEntryStore) IsCached(romID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[romID]
	return ok, nil
}

func (f *fakeEntryStore) Get(romID string) (*domain.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[romID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return e, nil
}

func (f *fakeEntryStore) Upsert(entry *domain.CacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.ROMID] = entry
	return nil
}

func (f *fakeEntryStore) Remove(romID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, romID)
	return nil
}

func (f *fakeEntryStore) Touch(romID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[romID] = now
	return nil
}

func (f *fakeEntryStore) SetFavorite(romID string, favorite bool) error { return nil }

func (f *fakeEntryStore) List() ([]*domain.CacheEntry, error) { return nil, nil }

func (f *fakeEntryStore) EvictionCandidates() ([]*domain.CacheEntry, error) { return nil, nil }

func (f *fakeEntryStore) Ping() error { return nil }

func (f *fakeEntryStore) touchCount(romID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.touched[romID]
	return ok
}

// fakeBlobStore keeps blobs in memory
type fakeBlobStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{files: make(map[string][]byte)}
}

func (f *fakeBlobStore) RootDir() string                { return "/cache" }
func (f *fakeBlobStore) BlobPath(romID string) string   { return filepath.Join("/cache", romID) }
func (f *fakeBlobStore) TempPath(romID string) string   { return filepath.Join("/cache", romID+".tmp.downloading") }

func (f *fakeBlobStore) WriteTemp(tempPath string, reader io.Reader) (int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[tempPath] = data
	return int64(len(data)), nil
}

func (f *fakeBlobStore) Commit(tempPath, blobPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[blobPath] = f.files[tempPath]
	delete(f.files, tempPath)
	return nil
}

func (f *fakeBlobStore) Delete(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}

func (f *fakeBlobStore) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

func (f *fakeBlobStore) FileSize(path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.files[path])), nil
}

func (f *fakeBlobStore) ListBlobIDs() ([]string, error)                       { return nil, nil }
func (f *fakeBlobStore) CleanOldTempFiles(olderThan time.Duration) (int, error) { return 0, nil }
func (f *fakeBlobStore) DiskUsage() (*port.DiskUsage, error)                  { return &port.DiskUsage{}, nil }

// fakeSource serves a fixed payload and records which servers were probed
type fakeSource struct {
	mu         sync.Mutex
	content    []byte
	available  map[string]bool // server name -> has the file
	probed     []string
	fetchedVia string
}

func (f *fakeSource) Probe(ctx context.Context, server *domain.ROMServer, platform, filename string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, server.Name)
	return f.available[server.Name], nil
}

func (f *fakeSource) Fetch(ctx context.Context, server *domain.ROMServer, platform, filename string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	f.fetchedVia = server.Name
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader(f.content)), int64(len(f.content)), nil
}

func (f *fakeSource) List(ctx context.Context, server *domain.ROMServer, platform string) ([]port.RemoteFile, error) {
	return nil, nil
}

// fakeLinker records refresh calls
type fakeLinker struct {
	mu        sync.Mutex
	refreshed []string
}

func (f *fakeLinker) Strategy() port.LinkStrategy { return port.StrategySymlink }
func (f *fakeLinker) Create(source, target string) error { return nil }
func (f *fakeLinker) Remove(target string) error         { return nil }

func (f *fakeLinker) Refresh(blobPath, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, target)
	return nil
}

// fakeWatcher delivers scripted access events
type fakeWatcher struct {
	events chan port.AccessEvent
	errs   chan error
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		events: make(chan port.AccessEvent, 16),
		errs:   make(chan error, 1),
	}
}

func (f *fakeWatcher) Watch(dir string) error            { return nil }
func (f *fakeWatcher) Events() <-chan port.AccessEvent   { return f.events }
func (f *fakeWatcher) Errors() <-chan error              { return f.errs }
func (f *fakeWatcher) Close() error                      { return nil }

type pipelineFixture struct {
	pipe    *Pipeline
	entries *fakeEntryStore
	blobs   *fakeBlobStore
	source  *fakeSource
	linker  *fakeLinker
	watcher *fakeWatcher
}

func newPipelineFixture(romsDir string, servers []*domain.ROMServer, source *fakeSource) *pipelineFixture {
	logger := zap.NewNop()
	entries := newFakeEntryStore()
	blobs := newFakeBlobStore()
	linker := &fakeLinker{}
	watcher := newFakeWatcher()

	runtime := config.NewRuntime(config.CacheConfig{
		MaxSizeGB:          1.0,
		CleanupThreshold:   0.9,
		MinFreeSpaceGB:     0.1,
		FavoriteProtection: true,
	})
	evictor := cache.NewEvictor(entries, blobs, runtime, logger)
	coordinator := cache.NewCoordinator(entries, blobs, source, evictor, runtime, logger)

	return &pipelineFixture{
		pipe:    New(romsDir, entries, blobs, source, coordinator, linker, watcher, servers, logger),
		entries: entries,
		blobs:   blobs,
		source:  source,
		linker:  linker,
		watcher: watcher,
	}
}

func testServers() []*domain.ROMServer {
	paths := map[string]string{"nes": "nes", "psx": "psx"}
	return []*domain.ROMServer{
		{Name: "primary", BaseURL: "http://primary", PlatformPaths: paths},
		{Name: "secondary", BaseURL: "http://secondary", PlatformPaths: paths},
	}
}

func TestSplitExposedPath(t *testing.T) {
	fix := newPipelineFixture("/roms", testServers(), &fakeSource{})

	tests := []struct {
		name         string
		path         string
		wantPlatform string
		wantFilename string
		wantOK       bool
	}{
		{"valid rom path", "/roms/nes/Mario.nes", "nes", "Mario.nes", true},
		{"outside roms dir", "/other/nes/Mario.nes", "", "", false},
		{"roms dir itself", "/roms", "", "", false},
		{"platform dir only", "/roms/nes", "", "", false},
		{"nested too deep", "/roms/nes/sub/Mario.nes", "", "", false},
		{"hidden file", "/roms/nes/.DS_Store", "", "", false},
		{"in-flight temp file", "/roms/nes/Mario.nes.abc.downloading", "", "", false},
		{"filename with spaces", "/roms/psx/Gran Turismo.bin", "psx", "Gran Turismo.bin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform, filename, ok := fix.pipe.splitExposedPath(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if platform != tt.wantPlatform || filename != tt.wantFilename {
				t.Errorf("got (%q, %q), want (%q, %q)", platform, filename, tt.wantPlatform, tt.wantFilename)
			}
		})
	}
}

func TestHandleAccess_TouchOnHit(t *testing.T) {
	source := &fakeSource{available: map[string]bool{"primary": true}}
	fix := newPipelineFixture("/roms", testServers(), source)

	fix.entries.Upsert(&domain.CacheEntry{ROMID: "nes_mario", Platform: "nes", SizeBytes: 1})

	fix.pipe.handleAccess(context.Background(), "/roms/nes/Mario.nes")

	if !fix.entries.touchCount("nes_mario") {
		t.Error("cached access did not touch the entry")
	}
	if len(source.probed) != 0 {
		t.Errorf("cached access hit the network: probed %v", source.probed)
	}
}

func TestHandleAccess_FetchOnMiss(t *testing.T) {
	source := &fakeSource{
		content:   []byte("mario rom"),
		available: map[string]bool{"primary": true},
	}
	fix := newPipelineFixture("/roms", testServers(), source)

	fix.pipe.handleAccess(context.Background(), "/roms/nes/Mario.nes")

	cached, _ := fix.entries.IsCached("nes_mario")
	if !cached {
		t.Fatal("miss did not ingest the rom")
	}
	if !fix.blobs.Exists("/cache/nes_mario") {
		t.Error("blob not committed")
	}
	if len(fix.linker.refreshed) != 1 || fix.linker.refreshed[0] != "/roms/nes/Mario.nes" {
		t.Errorf("refreshed = %v, want the accessed path", fix.linker.refreshed)
	}
}

func TestResolveServer_FirstFoundWins(t *testing.T) {
	source := &fakeSource{
		content:   []byte("x"),
		available: map[string]bool{"primary": false, "secondary": true},
	}
	fix := newPipelineFixture("/roms", testServers(), source)

	server, err := fix.pipe.resolveServer(context.Background(), "nes", "Mario.nes")
	if err != nil {
		t.Fatalf("resolveServer() error = %v", err)
	}
	if server.Name != "secondary" {
		t.Errorf("resolved %s, want secondary", server.Name)
	}
	if len(source.probed) != 2 {
		t.Errorf("probed %v, want both servers in order", source.probed)
	}
}

func TestResolveServer_NotFound(t *testing.T) {
	source := &fakeSource{available: map[string]bool{}}
	fix := newPipelineFixture("/roms", testServers(), source)

	_, err := fix.pipe.resolveServer(context.Background(), "nes", "Ghost.nes")
	if err != domain.ErrNotFound {
		t.Errorf("resolveServer() error = %v, want ErrNotFound", err)
	}
}

func TestResolveServer_SkipsServersWithoutPlatform(t *testing.T) {
	servers := []*domain.ROMServer{
		{Name: "nes-only", BaseURL: "http://a", PlatformPaths: map[string]string{"nes": "nes"}},
		{Name: "psx-only", BaseURL: "http://b", PlatformPaths: map[string]string{"psx": "psx"}},
	}
	source := &fakeSource{content: []byte("x"), available: map[string]bool{"psx-only": true}}
	fix := newPipelineFixture("/roms", servers, source)

	server, err := fix.pipe.resolveServer(context.Background(), "psx", "GT.bin")
	if err != nil {
		t.Fatalf("resolveServer() error = %v", err)
	}
	if server.Name != "psx-only" {
		t.Errorf("resolved %s, want psx-only", server.Name)
	}
	for _, name := range source.probed {
		if name == "nes-only" {
			t.Error("probed a server that does not carry the platform")
		}
	}
}

func TestPipeline_StartDispatchesEvents(t *testing.T) {
	source := &fakeSource{
		content:   []byte("event rom"),
		available: map[string]bool{"primary": true},
	}
	fix := newPipelineFixture("/roms", testServers(), source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fix.pipe.Start(ctx)
	}()

	fix.watcher.events <- port.AccessEvent{Path: "/roms/nes/Contra.nes"}

	deadline := time.After(2 * time.Second)
	for {
		if cached, _ := fix.entries.IsCached("nes_contra"); cached {
			break
		}
		select {
		case <-deadline:
			t.Fatal("event was not handled")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() returned %v after cancel", err)
	}
}
