//go:build linux

package fswatch

import (
	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/port"
)

// Detect returns the inotify open watcher, which observes real consumer
// opens rather than inferring access from notify side effects.
func Detect(logger *zap.Logger) (port.AccessWatcher, error) {
	logger.Info("access watcher selected", zap.String("watcher", "inotify-open"))
	return NewOpenWatcher(logger)
}
