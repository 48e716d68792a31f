//go:build !linux

package fswatch

import (
	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/port"
)

// Detect falls back to the portable fsnotify watcher on platforms without
// an open-event facility.
func Detect(logger *zap.Logger) (port.AccessWatcher, error) {
	logger.Info("access watcher selected", zap.String("watcher", "fsnotify"))
	return New(logger)
}
