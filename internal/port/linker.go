package port

// LinkStrategy is the filesystem-linking mechanism used to expose cached
// blobs at consumer-visible paths. Detected once at startup, immutable
// afterwards.
type LinkStrategy string

const (
	// StrategySymlink uses symbolic links. Always selected on POSIX
	// platforms; selected on Windows only when Developer Mode (or
	// elevation) allows unprivileged symlink creation.
	StrategySymlink LinkStrategy = "symlink"

	// StrategyHardlink uses hard links. Defined but never auto-selected:
	// it requires source and target on the same filesystem, which
	// detection does not verify. Available for explicit opt-in.
	StrategyHardlink LinkStrategy = "hardlink"

	// StrategyJunction uses Windows directory junctions. Valid only for
	// directories; single files fall back to copy-or-placeholder.
	StrategyJunction LinkStrategy = "junction"

	// StrategyCopy copies blob bytes, or creates an empty placeholder
	// when the blob does not exist yet.
	StrategyCopy LinkStrategy = "copy"
)

// Linker makes cached blobs visible at consumer-expected paths.
type Linker interface {
	// Strategy returns the active link strategy.
	Strategy() LinkStrategy

	// Create exposes source at target, replacing any existing target
	// first. For link strategies the source may not exist yet; the
	// resulting dangling link is the lazy-fetch trigger.
	Create(source, target string) error

	// Remove removes an exposed path. Best-effort: failures are swallowed
	// so a transient OS lock never aborts a broader cleanup.
	Remove(target string) error

	// Refresh re-populates target from the blob after ingestion. Only the
	// Copy strategy needs this; links reflect the blob transparently.
	Refresh(blobPath, target string) error
}
