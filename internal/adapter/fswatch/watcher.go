package fswatch

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/retroplay/rom-cache/internal/port"
)

// Watcher adapts fsnotify into the access-event stream the fetch pipeline
// consumes. fsnotify cannot observe opens, so the closest portable signals
// are write, chmod and rename operations on files under the exposed tree.
// Create events are surfaced only for regular files with content: links
// and empty files appearing under the tree are the library sync's own
// placeholders, and forwarding those would fetch every ROM the servers
// advertise. On Linux the inotify-based OpenWatcher observes real opens
// instead; this adapter is the fallback for other platforms.
type Watcher struct {
	fs     *fsnotify.Watcher
	events chan port.AccessEvent
	errors chan error
	logger *zap.Logger
}

// Ensure Watcher implements port.AccessWatcher
var _ port.AccessWatcher = (*Watcher)(nil)

// New creates a new access watcher
func New(logger *zap.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:     fs,
		events: make(chan port.AccessEvent),
		errors: make(chan error),
		logger: logger,
	}

	go w.translate()
	return w, nil
}

// Watch adds a directory and all of its subdirectories to the watch set
func (w *Watcher) Watch(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
}

// Events returns the access event stream
func (w *Watcher) Events() <-chan port.AccessEvent {
	return w.events
}

// Errors returns the watcher error stream
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops watching and closes both streams
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// translate forwards fsnotify events as access events until the underlying
// watcher closes
func (w *Watcher) translate() {
	defer close(w.events)
	defer close(w.errors)

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				info, err := os.Lstat(event.Name)
				if err != nil {
					// Already gone, nothing to trigger on.
					continue
				}
				// New platform directories must join the watch set so
				// files created inside them are observed.
				if info.IsDir() {
					if err := w.fs.Add(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory",
							zap.String("dir", event.Name),
							zap.Error(err))
					}
					continue
				}
				// Links and empty files are placeholders created by the
				// library sync, not consumer access. Without this the
				// initial sync would trigger a fetch of every listed ROM.
				if info.Mode()&os.ModeSymlink != 0 || info.Size() == 0 {
					continue
				}
			}

			if event.Has(fsnotify.Remove) {
				continue
			}

			w.events <- port.AccessEvent{Path: event.Name}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.errors <- err
		}
	}
}
