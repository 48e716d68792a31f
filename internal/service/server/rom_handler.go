package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/port"
	"github.com/retroplay/rom-cache/internal/service/pipeline"
)

// ROMHandler handles ROM listing and per-ROM requests
type ROMHandler struct {
	entries  port.EntryStore
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// NewROMHandler creates a new ROMHandler
func NewROMHandler(entries port.EntryStore, pipe *pipeline.Pipeline, logger *zap.Logger) *ROMHandler {
	return &ROMHandler{
		entries:  entries,
		pipeline: pipe,
		logger:   logger,
	}
}

// romResponse is a single entry in the listing payload
type romResponse struct {
	ROMID         string `json:"rom_id"`
	Filename      string `json:"filename"`
	Platform      string `json:"platform"`
	SizeBytes     int64  `json:"size_bytes"`
	LastAccessed  string `json:"last_accessed"`
	DownloadTime  string `json:"download_time"`
	PriorityScore int    `json:"priority_score"`
	IsFavorite    bool   `json:"is_favorite"`
	Status        string `json:"status"`
}

func toROMResponse(e *domain.CacheEntry, downloading bool) romResponse {
	status := "cached"
	if downloading {
		status = "downloading"
	}
	return romResponse{
		ROMID:         e.ROMID,
		Filename:      e.Filename,
		Platform:      e.Platform,
		SizeBytes:     e.SizeBytes,
		LastAccessed:  e.LastAccessed.Format(time.RFC3339),
		DownloadTime:  e.DownloadTime.Format(time.RFC3339),
		PriorityScore: e.PriorityScore,
		IsFavorite:    e.IsFavorite,
		Status:        status,
	}
}

// HandleList serves GET /api/roms
func (h *ROMHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries, err := h.entries.List()
	if err != nil {
		h.logger.Error("failed to list entries", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	platform := r.URL.Query().Get("platform")
	roms := make([]romResponse, 0, len(entries))
	for _, e := range entries {
		if platform != "" && e.Platform != platform {
			continue
		}
		roms = append(roms, toROMResponse(e, h.pipeline.Downloading(e.Platform, e.Filename)))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(roms),
		"roms":  roms,
	})
}

// downloadRequest is the POST /api/roms/download payload
type downloadRequest struct {
	Platform string `json:"platform"`
	Filename string `json:"filename"`
}

// HandleDownload serves POST /api/roms/download
func (h *ROMHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Platform == "" || req.Filename == "" {
		http.Error(w, "platform and filename are required", http.StatusBadRequest)
		return
	}

	romID := domain.ROMIDFor(req.Platform, req.Filename)
	cached, err := h.entries.IsCached(romID)
	if err == nil && cached {
		writeJSON(w, http.StatusOK, map[string]string{
			"rom_id": romID,
			"status": "cached",
		})
		return
	}

	// The fetch outlives the request; the client polls /api/roms for
	// completion.
	go func() {
		if err := h.pipeline.Fetch(context.Background(), req.Platform, req.Filename); err != nil {
			h.logger.Warn("requested download failed",
				zap.String("rom_id", romID),
				zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"rom_id": romID,
		"status": "downloading",
	})
}

// HandleROM serves /api/roms/{id} and /api/roms/{id}/favorite
func (h *ROMHandler) HandleROM(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/roms/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.handleGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "favorite":
		h.handleFavorite(w, r, parts[0])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *ROMHandler) handleGet(w http.ResponseWriter, r *http.Request, romID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entry, err := h.entries.Get(romID)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			http.Error(w, "ROM not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get entry", zap.String("rom_id", romID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toROMResponse(entry, false))
}

// favoriteRequest is the POST /api/roms/{id}/favorite payload
type favoriteRequest struct {
	Favorite bool `json:"favorite"`
}

func (h *ROMHandler) handleFavorite(w http.ResponseWriter, r *http.Request, romID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// SetFavorite is a no-op on a miss, so check existence for a proper 404.
	if _, err := h.entries.Get(romID); err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			http.Error(w, "ROM not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get entry", zap.String("rom_id", romID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.entries.SetFavorite(romID, req.Favorite); err != nil {
		h.logger.Error("failed to set favorite", zap.String("rom_id", romID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("favorite flag updated",
		zap.String("rom_id", romID),
		zap.Bool("favorite", req.Favorite))
	writeJSON(w, http.StatusOK, map[string]any{
		"rom_id":   romID,
		"favorite": req.Favorite,
	})
}
