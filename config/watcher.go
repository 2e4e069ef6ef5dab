package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the configuration when the project file changes on disk.
type Watcher struct {
	watcher    *fsnotify.Watcher
	path       string
	debounce   time.Duration
	lastChange time.Time
	mu         sync.Mutex
	logger     *logrus.Entry
	onReload   func(*Config)
}

// NewWatcher watches the directory holding path (editors replace files by
// rename, which a watch on the file itself would miss). onReload receives
// the freshly loaded configuration; files that fail to load are logged and
// skipped.
func NewWatcher(path string, debounce time.Duration, logger *logrus.Entry, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:  watcher,
		path:     abs,
		debounce: debounce,
		logger:   logger,
		onReload: onReload,
	}, nil
}

// Start begins watching for config changes. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.handleChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// handleChange reloads the configuration with debouncing.
func (w *Watcher) handleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := time.Since(w.lastChange)
	if elapsed < w.debounce {
		w.logger.Debugf("Debounced: %s (only %v since last change)", filepath.Base(w.path), elapsed)
		return
	}
	w.lastChange = time.Now()

	cfg, err := LoadFrom(filepath.Dir(w.path))
	if err != nil {
		w.logger.WithError(err).Warn("Config changed but failed to load, keeping previous settings")
		return
	}

	w.logger.Infof("Config changed: %s", filepath.Base(w.path))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
