package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the current project configuration and reloads it when the
// file changes. Readers take one immutable snapshot per request via Current.
// A reload that fails validation keeps the previous snapshot.
type Watcher struct {
	path     string
	current  atomic.Pointer[ProjectConfig]
	watcher  *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}
}

// NewWatcher loads path once and returns a watcher serving that snapshot.
// Call Start to follow file changes.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     path,
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}
	w.current.Store(cfg)
	return w, nil
}

// Static wraps an already-loaded configuration. The snapshot never changes.
func Static(cfg *ProjectConfig) *Watcher {
	w := &Watcher{done: make(chan struct{})}
	w.current.Store(cfg)
	close(w.done)
	return w
}

// Current returns the active configuration snapshot.
func (w *Watcher) Current() *ProjectConfig {
	return w.current.Load()
}

// Reload re-reads the file and swaps the snapshot if it is valid.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.current.Store(cfg)
	return nil
}

// Start watches the config file's directory (editors replace files by
// rename) and reloads on writes until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		return fmt.Errorf("static configuration cannot be watched")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.watcher = fw

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.watcher.Close()

	target := filepath.Clean(w.path)
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(w.debounce)
			}

		case <-pending:
			pending = nil
			if err := w.Reload(); err != nil {
				log.Printf("[Config] Reload of %s rejected, keeping previous configuration: %v", w.path, err)
				continue
			}
			log.Printf("[Config] Reloaded %s", w.path)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Config] Watcher error: %v", err)
		}
	}
}

// Close stops watching. Safe to call on a watcher that was never started.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}
