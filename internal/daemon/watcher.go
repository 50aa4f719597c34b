package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// wakeSource is what the orchestrator needs from a WakeWatcher.
type wakeSource interface {
	Events() <-chan string
	Errors() <-chan error
	Stop() error
}

// WakeWatcher reports files dropped into a wake directory.
// Another process requests a background cycle by creating any file there
// whose name does not start with a dot.
type WakeWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	events  chan string
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func openWakeWatcher(dir string) (wakeSource, error) {
	w, err := NewWakeWatcher(dir)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// NewWakeWatcher creates dir if needed and starts watching it.
func NewWakeWatcher(dir string) (*WakeWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create wake directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ww := &WakeWatcher{
		watcher: watcher,
		dir:     dir,
		events:  make(chan string, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
		running: true,
	}
	ww.wg.Add(1)
	go ww.processEvents()
	return ww, nil
}

// Stop stops watching and closes the channels. It blocks until the event
// loop has exited.
func (ww *WakeWatcher) Stop() error {
	ww.mu.Lock()
	if !ww.running {
		ww.mu.Unlock()
		return nil
	}
	ww.running = false
	ww.mu.Unlock()

	close(ww.done)
	err := ww.watcher.Close()
	ww.wg.Wait()

	close(ww.events)
	close(ww.errors)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Events returns the paths of new wake files.
// This channel is closed when the watcher is stopped.
func (ww *WakeWatcher) Events() <-chan string {
	return ww.events
}

// Errors returns watcher errors.
// This channel is closed when the watcher is stopped.
func (ww *WakeWatcher) Errors() <-chan error {
	return ww.errors
}

func (ww *WakeWatcher) processEvents() {
	defer ww.wg.Done()

	for {
		select {
		case <-ww.done:
			return

		case event, ok := <-ww.watcher.Events:
			if !ok {
				return
			}
			if !ww.isWake(event) {
				continue
			}
			select {
			case ww.events <- event.Name:
			case <-ww.done:
				return
			}

		case err, ok := <-ww.watcher.Errors:
			if !ok {
				return
			}
			select {
			case ww.errors <- err:
			case <-ww.done:
				return
			}
		}
	}
}

// isWake reports whether event is a new wake file.
func (ww *WakeWatcher) isWake(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) {
		return false
	}
	if filepath.Dir(event.Name) != filepath.Clean(ww.dir) {
		return false
	}
	return !strings.HasPrefix(filepath.Base(event.Name), ".")
}

// RequestWake drops a wake file into dir, asking a daemon watching it for a
// background cycle.
func RequestWake(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create wake directory %s: %w", dir, err)
	}
	name := fmt.Sprintf("wake-%d-%d", os.Getpid(), time.Now().UnixNano())
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create wake file: %w", err)
	}
	return f.Close()
}

// clearWakeFiles removes wake files left from before the watcher started.
// The startup cycle stands in for them.
func clearWakeFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return n, err
		}
		n++
	}
	return n, nil
}
