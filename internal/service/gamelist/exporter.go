package gamelist

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/port"
)

// game is one entry in an EmulationStation gamelist.xml
type game struct {
	Path     string `xml:"path"`
	Name     string `xml:"name"`
	Favorite string `xml:"favorite,omitempty"`
}

// gameList is the root element of a gamelist.xml
type gameList struct {
	XMLName xml.Name `xml:"gameList"`
	Games   []game   `xml:"game"`
}

// Exporter writes EmulationStation gamelist.xml files from the cache
// index so the front-end shows names and favorite flags for cached ROMs.
type Exporter struct {
	entries   port.EntryStore
	configDir string
	interval  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewExporter creates a gamelist Exporter writing under configDir
// (gamelists/<platform>/gamelist.xml). interval bounds how often the
// lists are rewritten; zero disables the periodic loop.
func NewExporter(entries port.EntryStore, configDir string, interval time.Duration, logger *zap.Logger) *Exporter {
	return &Exporter{
		entries:   entries,
		configDir: configDir,
		interval:  interval,
		logger:    logger,
	}
}

// Start writes all gamelists once and then rewrites them periodically
// until ctx is done.
func (e *Exporter) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("gamelist exporter already running")
	}
	e.running = true
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.logger.Info("starting gamelist exporter",
		zap.String("config_dir", e.configDir),
		zap.Duration("interval", e.interval))

	if err := e.ExportAll(); err != nil {
		e.logger.Error("initial gamelist export failed", zap.Error(err))
	}

	if e.interval > 0 {
		e.wg.Add(1)
		go e.exportLoop(ctx)
	}

	<-ctx.Done()
	e.wg.Wait()
	return ctx.Err()
}

// Stop stops the exporter
func (e *Exporter) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.running = false
}

func (e *Exporter) exportLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.ExportAll(); err != nil {
				e.logger.Error("gamelist export failed", zap.Error(err))
			}
		}
	}
}

// ExportAll writes one gamelist per platform that has cached entries.
func (e *Exporter) ExportAll() error {
	entries, err := e.entries.List()
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}

	byPlatform := make(map[string][]*domain.CacheEntry)
	for _, entry := range entries {
		if entry.Platform == "" {
			continue
		}
		byPlatform[entry.Platform] = append(byPlatform[entry.Platform], entry)
	}

	for platform, platformEntries := range byPlatform {
		if err := e.exportPlatform(platform, platformEntries); err != nil {
			e.logger.Error("gamelist export failed",
				zap.String("platform", platform),
				zap.Error(err))
			continue
		}
		e.logger.Info("gamelist exported",
			zap.String("platform", platform),
			zap.Int("games", len(platformEntries)))
	}
	return nil
}

func (e *Exporter) exportPlatform(platform string, entries []*domain.CacheEntry) error {
	list := gameList{Games: make([]game, 0, len(entries))}
	for _, entry := range entries {
		g := game{
			Path: "./" + entry.Filename,
			Name: strings.TrimSuffix(entry.Filename, filepath.Ext(entry.Filename)),
		}
		if entry.IsFavorite {
			g.Favorite = "true"
		}
		list.Games = append(list.Games, g)
	}

	dir := filepath.Join(e.configDir, "gamelists", platform)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := xml.MarshalIndent(list, "", "\t")
	if err != nil {
		return err
	}
	data = append([]byte(xml.Header), data...)

	// Written through a temp file so the front-end never reads a torn list.
	path := filepath.Join(dir, "gamelist.xml")
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
