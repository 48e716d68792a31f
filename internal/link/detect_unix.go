//go:build !windows
// +build !windows

package link

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/port"
)

// detectStrategy selects the link strategy for POSIX-like platforms.
// Symbolic links are always available there.
func detectStrategy(_ *zap.Logger) port.LinkStrategy {
	return port.StrategySymlink
}

// createJunction is Windows-only; the junction strategy is never detected
// on POSIX platforms but may be forced through explicit configuration.
func createJunction(source, target string) error {
	return fmt.Errorf("directory junctions are not supported on this platform")
}
