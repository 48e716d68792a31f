//go:build linux

package fswatch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/retroplay/rom-cache/internal/port"
)

// openMask subscribes to real consumer accesses plus creates, which are
// needed only to keep new platform directories in the watch set.
const openMask = unix.IN_OPEN | unix.IN_ACCESS | unix.IN_CREATE

// OpenWatcher observes actual opens and reads on the exposed tree via raw
// inotify. fsnotify never subscribes to IN_OPEN/IN_ACCESS, so it cannot
// see the event the dangling-link trigger is built around: the frontend
// opening a placeholder. Creates under the tree are population by the
// library sync and are never surfaced as access.
type OpenWatcher struct {
	fd     int
	wake   [2]int
	events chan port.AccessEvent
	errors chan error
	logger *zap.Logger

	mu      sync.Mutex
	watches map[int]string
	closed  bool
}

var _ port.AccessWatcher = (*OpenWatcher)(nil)

// NewOpenWatcher creates an inotify-backed access watcher
func NewOpenWatcher(logger *zap.Logger) (*OpenWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}

	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("inotify wake pipe: %w", err)
	}

	w := &OpenWatcher{
		fd:      fd,
		wake:    wake,
		events:  make(chan port.AccessEvent, 16),
		errors:  make(chan error),
		logger:  logger,
		watches: make(map[int]string),
	}

	go w.read()
	return w, nil
}

// Watch adds a directory and all of its subdirectories to the watch set
func (w *OpenWatcher) Watch(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.add(path)
		}
		return nil
	})
}

func (w *OpenWatcher) add(dir string) error {
	wd, err := unix.InotifyAddWatch(w.fd, dir, openMask)
	if err != nil {
		return fmt.Errorf("inotify add %s: %w", dir, err)
	}
	w.mu.Lock()
	w.watches[wd] = dir
	w.mu.Unlock()
	return nil
}

// Events returns the access event stream
func (w *OpenWatcher) Events() <-chan port.AccessEvent {
	return w.events
}

// Errors returns the watcher error stream
func (w *OpenWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher. The read goroutine owns the descriptors and
// closes them, and both streams, on its way out.
func (w *OpenWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	_, err := unix.Write(w.wake[1], []byte{0})
	return err
}

func (w *OpenWatcher) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// read polls the inotify descriptor until Close signals through the wake
// pipe
func (w *OpenWatcher) read() {
	defer func() {
		unix.Close(w.fd)
		unix.Close(w.wake[0])
		unix.Close(w.wake[1])
		close(w.events)
		close(w.errors)
	}()

	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	fds := []unix.PollFd{
		{Fd: int32(w.fd), Events: unix.POLLIN},
		{Fd: int32(w.wake[0]), Events: unix.POLLIN},
	}

	for {
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			if !w.isClosed() {
				w.errors <- err
			}
			return
		}
		if fds[1].Revents != 0 {
			return
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			if !w.isClosed() {
				w.errors <- err
			}
			return
		}
		w.dispatch(buf[:n])
	}
}

// dispatch walks one read's worth of packed inotify events
func (w *OpenWatcher) dispatch(buf []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		name := ""
		if raw.Len > 0 {
			nb := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+int(raw.Len)]
			name = string(bytes.TrimRight(nb, "\x00"))
		}
		offset += unix.SizeofInotifyEvent + int(raw.Len)
		w.handle(raw.Mask, int(raw.Wd), name)
	}
}

func (w *OpenWatcher) handle(mask uint32, wd int, name string) {
	if mask&unix.IN_IGNORED != 0 {
		w.mu.Lock()
		delete(w.watches, wd)
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	dir, ok := w.watches[wd]
	w.mu.Unlock()

	// A nameless event is on the watched directory itself: a frontend
	// scanning the tree, not an access of a ROM.
	if !ok || name == "" {
		return
	}

	path := filepath.Join(dir, name)

	if mask&unix.IN_ISDIR != 0 {
		// New platform directories must join the watch set.
		if mask&unix.IN_CREATE != 0 {
			if err := w.add(path); err != nil {
				w.logger.Warn("failed to watch new directory",
					zap.String("dir", path),
					zap.Error(err))
			}
		}
		return
	}

	// Creation under the tree is population (placeholder links, refresh
	// copies), never a consumer access.
	if mask&unix.IN_CREATE != 0 {
		return
	}
	if mask&(unix.IN_OPEN|unix.IN_ACCESS) == 0 {
		return
	}

	w.events <- port.AccessEvent{Path: path}
}
