package port

// AccessEvent is one observed access on the exposed tree.
type AccessEvent struct {
	// Path is the exposed path that was accessed. By contract this is the
	// exact path a background fetch must ultimately populate.
	Path string
}

// AccessWatcher observes filesystem access on the exposed tree. Events are
// delivered serially; handlers must not block the delivery channel.
type AccessWatcher interface {
	// Watch adds a directory (recursively) to the watch set.
	Watch(dir string) error

	// Events returns the access event stream.
	Events() <-chan AccessEvent

	// Errors returns the watcher error stream.
	Errors() <-chan error

	// Close stops watching and closes both streams.
	Close() error
}
