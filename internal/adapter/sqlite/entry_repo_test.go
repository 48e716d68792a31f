package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/retroplay/rom-cache/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleEntry(romID string) *domain.CacheEntry {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return &domain.CacheEntry{
		ROMID:         romID,
		Filename:      "Game.nes",
		Platform:      "nes",
		SizeBytes:     42 << 20,
		LastAccessed:  now,
		DownloadTime:  now,
		PriorityScore: 160,
	}
}

func TestStore_UpsertAndGet(t *testing.T) {
	store := openTestStore(t)

	entry := sampleEntry("nes_game")
	if err := store.Upsert(entry); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := store.Get("nes_game")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ROMID != entry.ROMID || got.Filename != entry.Filename ||
		got.Platform != entry.Platform || got.SizeBytes != entry.SizeBytes ||
		got.PriorityScore != entry.PriorityScore {
		t.Errorf("Get() = %+v, want %+v", got, entry)
	}
	if !got.LastAccessed.Equal(entry.LastAccessed) {
		t.Errorf("LastAccessed = %v, want %v", got.LastAccessed, entry.LastAccessed)
	}

	// Replacing the same id must not create a second row.
	entry.SizeBytes = 100 << 20
	if err := store.Upsert(entry); err != nil {
		t.Fatalf("Upsert() replace error = %v", err)
	}
	stats, err := store.Stats(1 << 30)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalFiles != 1 {
		t.Errorf("TotalFiles after replace = %d, want 1", stats.TotalFiles)
	}
	if stats.TotalBytes != 100<<20 {
		t.Errorf("TotalBytes after replace = %d, want %d", stats.TotalBytes, 100<<20)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get("nes_nothing")
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("Get() error = %v, want ErrEntryNotFound", err)
	}
}

func TestStore_IsCached(t *testing.T) {
	store := openTestStore(t)

	cached, err := store.IsCached("nes_game")
	if err != nil {
		t.Fatalf("IsCached() error = %v", err)
	}
	if cached {
		t.Error("IsCached() = true for missing entry")
	}

	store.Upsert(sampleEntry("nes_game"))

	cached, err = store.IsCached("nes_game")
	if err != nil {
		t.Fatalf("IsCached() error = %v", err)
	}
	if !cached {
		t.Error("IsCached() = false after Upsert")
	}
}

func TestStore_Remove(t *testing.T) {
	store := openTestStore(t)
	store.Upsert(sampleEntry("nes_game"))

	if err := store.Remove("nes_game"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if cached, _ := store.IsCached("nes_game"); cached {
		t.Error("entry still present after Remove()")
	}

	// Removing an absent id is not an error.
	if err := store.Remove("nes_game"); err != nil {
		t.Errorf("Remove() absent id error = %v", err)
	}
}

func TestStore_TouchMonotonic(t *testing.T) {
	store := openTestStore(t)
	entry := sampleEntry("nes_game")
	store.Upsert(entry)

	later := entry.LastAccessed.Add(time.Hour)
	if err := store.Touch("nes_game", later); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	got, _ := store.Get("nes_game")
	if !got.LastAccessed.Equal(later) {
		t.Errorf("LastAccessed = %v, want %v", got.LastAccessed, later)
	}

	// An earlier timestamp must never move last_accessed backwards.
	earlier := entry.LastAccessed.Add(-time.Hour)
	if err := store.Touch("nes_game", earlier); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	got, _ = store.Get("nes_game")
	if !got.LastAccessed.Equal(later) {
		t.Errorf("LastAccessed moved backwards to %v", got.LastAccessed)
	}

	// Touching a missing id is a no-op.
	if err := store.Touch("nes_ghost", later); err != nil {
		t.Errorf("Touch() missing id error = %v", err)
	}
}

func TestStore_SetFavorite(t *testing.T) {
	store := openTestStore(t)
	store.Upsert(sampleEntry("nes_game"))

	if err := store.SetFavorite("nes_game", true); err != nil {
		t.Fatalf("SetFavorite() error = %v", err)
	}
	got, _ := store.Get("nes_game")
	if !got.IsFavorite {
		t.Error("IsFavorite = false after SetFavorite(true)")
	}

	if err := store.SetFavorite("nes_game", false); err != nil {
		t.Fatalf("SetFavorite() error = %v", err)
	}
	got, _ = store.Get("nes_game")
	if got.IsFavorite {
		t.Error("IsFavorite = true after SetFavorite(false)")
	}
}

func TestStore_EvictionCandidatesOrder(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	rows := []struct {
		romID    string
		score    int
		accessed time.Time
	}{
		{"nes_c", 50, base.Add(2 * time.Hour)},
		{"nes_a", 10, base.Add(1 * time.Hour)},
		{"nes_b", 10, base},
		{"nes_d", 30, base},
	}
	for _, r := range rows {
		e := sampleEntry(r.romID)
		e.PriorityScore = r.score
		e.LastAccessed = r.accessed
		if err := store.Upsert(e); err != nil {
			t.Fatalf("Upsert(%s) error = %v", r.romID, err)
		}
	}

	candidates, err := store.EvictionCandidates()
	if err != nil {
		t.Fatalf("EvictionCandidates() error = %v", err)
	}

	want := []string{"nes_b", "nes_a", "nes_d", "nes_c"}
	if len(candidates) != len(want) {
		t.Fatalf("len(candidates) = %d, want %d", len(candidates), len(want))
	}
	for i, id := range want {
		if candidates[i].ROMID != id {
			t.Errorf("candidates[%d] = %s, want %s", i, candidates[i].ROMID, id)
		}
	}
}

func TestStore_ListOrder(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	for i, romID := range []string{"nes_old", "nes_mid", "nes_new"} {
		e := sampleEntry(romID)
		e.LastAccessed = base.Add(time.Duration(i) * time.Hour)
		store.Upsert(e)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"nes_new", "nes_mid", "nes_old"}
	for i, id := range want {
		if entries[i].ROMID != id {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].ROMID, id)
		}
	}
}

func TestStore_StatsEmpty(t *testing.T) {
	store := openTestStore(t)

	stats, err := store.Stats(1 << 30)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalFiles != 0 || stats.TotalBytes != 0 {
		t.Errorf("Stats() on empty index = %+v", stats)
	}
	if stats.FreeBytes != 1<<30 {
		t.Errorf("FreeBytes = %d, want %d", stats.FreeBytes, 1<<30)
	}
}
