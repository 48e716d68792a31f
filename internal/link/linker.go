package link

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/domain"
	"github.com/retroplay/rom-cache/internal/port"
)

// Manager exposes cached blobs at consumer-expected paths using the single
// strategy selected at startup.
type Manager struct {
	strategy port.LinkStrategy
	logger   *zap.Logger
}

// Ensure Manager implements port.Linker
var _ port.Linker = (*Manager)(nil)

// NewManager creates a link manager using capability detection
func NewManager(logger *zap.Logger) *Manager {
	strategy := detectStrategy(logger)
	logger.Info("link strategy selected", zap.String("strategy", string(strategy)))
	return &Manager{strategy: strategy, logger: logger}
}

// NewManagerWithStrategy creates a link manager with an explicitly chosen
// strategy, bypassing detection. Hardlink is only reachable this way and
// requires blobs and the exposed tree on the same filesystem.
func NewManagerWithStrategy(strategy port.LinkStrategy, logger *zap.Logger) *Manager {
	return &Manager{strategy: strategy, logger: logger}
}

// Strategy returns the active link strategy
func (m *Manager) Strategy() port.LinkStrategy {
	return m.strategy
}

// Create exposes source at target. For the link strategies the source may
// not exist yet: the dangling link is what lets the watcher observe the
// first access to a not-yet-cached ROM.
func (m *Manager) Create(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLinkCreation, err)
	}

	// Lstat so a dangling link counts as existing.
	if _, err := os.Lstat(target); err == nil {
		m.Remove(target)
	}

	var err error
	switch m.strategy {
	case port.StrategySymlink:
		err = os.Symlink(source, target)

	case port.StrategyHardlink:
		err = os.Link(source, target)

	case port.StrategyJunction:
		err = m.createJunctionOrFallback(source, target)

	case port.StrategyCopy:
		err = m.copyOrPlaceholder(source, target)

	default:
		err = fmt.Errorf("unknown strategy %q", m.strategy)
	}

	if err != nil {
		return fmt.Errorf("%w: %s -> %s: %v", domain.ErrLinkCreation, target, source, err)
	}

	m.logger.Debug("created link",
		zap.String("target", target),
		zap.String("source", source),
		zap.String("strategy", string(m.strategy)))
	return nil
}

// Remove removes an exposed path. Best-effort: a transient OS lock must
// never abort a broader cleanup or re-link, so failures are logged and
// swallowed.
func (m *Manager) Remove(target string) error {
	info, err := os.Lstat(target)
	if err != nil {
		return nil
	}

	if info.IsDir() {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}

	if err != nil {
		m.logger.Warn("failed to remove link", zap.String("target", target), zap.Error(err))
	}
	return nil
}

// Refresh re-populates target from the blob after ingestion completes.
// Links reflect the blob transparently; only copies need re-copying.
func (m *Manager) Refresh(blobPath, target string) error {
	if m.strategy != port.StrategyCopy {
		return nil
	}
	if err := copyFile(blobPath, target); err != nil {
		return fmt.Errorf("%w: refresh %s: %v", domain.ErrLinkCreation, target, err)
	}
	return nil
}

// createJunctionOrFallback handles the junction strategy. Junctions are
// valid only for directories; a single file falls back to copy-or-placeholder.
func (m *Manager) createJunctionOrFallback(source, target string) error {
	info, err := os.Stat(source)
	switch {
	case err == nil && info.IsDir():
		return createJunction(source, target)
	case err == nil:
		return copyFile(source, target)
	default:
		return touchPlaceholder(target)
	}
}

// copyOrPlaceholder handles the copy strategy. A missing source still gets
// a file entry so the consumer has something to access later.
func (m *Manager) copyOrPlaceholder(source, target string) error {
	if _, err := os.Stat(source); err != nil {
		return touchPlaceholder(target)
	}
	return copyFile(source, target)
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func touchPlaceholder(target string) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}
