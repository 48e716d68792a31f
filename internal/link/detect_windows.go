//go:build windows
// +build windows

package link

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/port"
)

// detectStrategy probes what the Windows host actually permits: real
// symlinks need Developer Mode or elevation, junctions work for ordinary
// users on NTFS, and copying always works.
func detectStrategy(logger *zap.Logger) port.LinkStrategy {
	if canCreateSymlinks() {
		return port.StrategySymlink
	}
	if canCreateJunctions() {
		return port.StrategyJunction
	}
	logger.Warn("no symlink or junction support, falling back to file copying")
	return port.StrategyCopy
}

func canCreateSymlinks() bool {
	dir, err := os.MkdirTemp("", "linkprobe")
	if err != nil {
		return false
	}
	defer os.RemoveAll(dir)

	source := filepath.Join(dir, "source")
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(source, nil, 0644); err != nil {
		return false
	}
	return os.Symlink(source, target) == nil
}

func canCreateJunctions() bool {
	dir, err := os.MkdirTemp("", "linkprobe")
	if err != nil {
		return false
	}
	defer os.RemoveAll(dir)

	source := filepath.Join(dir, "source")
	target := filepath.Join(dir, "target")
	if err := os.Mkdir(source, 0755); err != nil {
		return false
	}
	return createJunction(source, target) == nil
}

// createJunction creates an NTFS directory junction via mklink.
func createJunction(source, target string) error {
	out, err := exec.Command("cmd", "/c", "mklink", "/J", target, source).CombinedOutput()
	if err != nil {
		return fmt.Errorf("junction creation failed: %v: %s", err, out)
	}
	return nil
}
