package server

import (
	"encoding/json"
	"net/http"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/config"
	"github.com/retroplay/rom-cache/internal/port"
	"github.com/retroplay/rom-cache/internal/service/cache"
)

// CacheHandler handles cache management requests
type CacheHandler struct {
	entries port.EntryStore
	blobs   port.BlobStore
	evictor *cache.Evictor
	runtime *config.Runtime
	logger  *zap.Logger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(
	entries port.EntryStore,
	blobs port.BlobStore,
	evictor *cache.Evictor,
	runtime *config.Runtime,
	logger *zap.Logger,
) *CacheHandler {
	return &CacheHandler{
		entries: entries,
		blobs:   blobs,
		evictor: evictor,
		runtime: runtime,
		logger:  logger,
	}
}

// statsResponse is the cache statistics payload
type statsResponse struct {
	TotalFiles    int64   `json:"total_files"`
	TotalBytes    int64   `json:"total_bytes"`
	TotalSize     string  `json:"total_size"`
	MaxBytes      int64   `json:"max_bytes"`
	UsagePercent  float64 `json:"usage_percent"`
	FreeBytes     int64   `json:"free_bytes"`
	DiskUsedPct   float64 `json:"disk_used_percent"`
	DiskFreeBytes uint64  `json:"disk_free_bytes"`
}

// HandleStats serves GET /api/cache/stats
func (h *CacheHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	settings := h.runtime.Snapshot()
	stats, err := h.entries.Stats(settings.MaxBytes())
	if err != nil {
		h.logger.Error("failed to compute stats", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := statsResponse{
		TotalFiles:   stats.TotalFiles,
		TotalBytes:   stats.TotalBytes,
		TotalSize:    humanize.IBytes(uint64(stats.TotalBytes)),
		MaxBytes:     stats.MaxBytes,
		UsagePercent: stats.UsageFraction * 100,
		FreeBytes:    stats.FreeBytes,
	}

	if usage, err := h.blobs.DiskUsage(); err == nil {
		resp.DiskUsedPct = usage.UsedPct
		resp.DiskFreeBytes = usage.Free
	}

	writeJSON(w, http.StatusOK, resp)
}

// configPayload mirrors the runtime-mutable cache settings
type configPayload struct {
	MaxSizeGB          *float64       `json:"max_size_gb,omitempty"`
	CleanupThreshold   *float64       `json:"cleanup_threshold,omitempty"`
	MinFreeSpaceGB     *float64       `json:"min_free_space_gb,omitempty"`
	FavoriteProtection *bool          `json:"favorite_protection,omitempty"`
	PlatformPriority   map[string]int `json:"platform_priority,omitempty"`
}

// HandleConfig serves GET and PUT /api/cache/config
func (h *CacheHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s := h.runtime.Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{
			"max_size_gb":         s.MaxSizeGB,
			"cleanup_threshold":   s.CleanupThreshold,
			"min_free_space_gb":   s.MinFreeSpaceGB,
			"favorite_protection": s.FavoriteProtection,
			"platform_priority":   s.PlatformPriority,
		})

	case http.MethodPut:
		var payload configPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		// Build the full replacement value first; the swap itself is a
		// single atomic store, never field-by-field mutation.
		next := *h.runtime.Snapshot()
		if payload.MaxSizeGB != nil {
			next.MaxSizeGB = *payload.MaxSizeGB
		}
		if payload.CleanupThreshold != nil {
			next.CleanupThreshold = *payload.CleanupThreshold
		}
		if payload.MinFreeSpaceGB != nil {
			next.MinFreeSpaceGB = *payload.MinFreeSpaceGB
		}
		if payload.FavoriteProtection != nil {
			next.FavoriteProtection = *payload.FavoriteProtection
		}
		if payload.PlatformPriority != nil {
			next.PlatformPriority = payload.PlatformPriority
		}

		if next.MaxSizeGB <= 0 || next.CleanupThreshold <= 0 || next.CleanupThreshold > 1 {
			http.Error(w, "Invalid cache settings", http.StatusBadRequest)
			return
		}

		h.runtime.Swap(next)
		h.logger.Info("cache settings updated",
			zap.Float64("max_size_gb", next.MaxSizeGB),
			zap.Float64("cleanup_threshold", next.CleanupThreshold))
		writeJSON(w, http.StatusOK, map[string]string{"message": "configuration updated"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// cleanupRequest is the POST /api/cache/cleanup payload
type cleanupRequest struct {
	TargetFreeGB float64 `json:"target_free_gb"`
	Force        bool    `json:"force"`
}

// HandleCleanup serves POST /api/cache/cleanup
func (h *CacheHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cleanupRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	removed, err := h.evictor.Cleanup(r.Context(), req.TargetFreeGB, req.Force)
	if err != nil {
		h.logger.Error("cleanup failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removed_count": len(removed),
		"removed_roms":  removed,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
