package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the config file for changes and invokes a reload callback.
// The callback receives the freshly loaded configuration; load or validation
// failures keep the previous configuration in force.
type Watcher struct {
	path        string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	lastModTime time.Time
	onReload    func(*Config)
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     path,
		watcher:  watcher,
		stopChan: make(chan struct{}),
		onReload: onReload,
	}
	if stat, err := os.Stat(path); err == nil {
		w.lastModTime = stat.ModTime()
	}
	return w, nil
}

// Start begins watching the config file's directory. Editors and configmap
// mounts replace files rather than writing in place, so the directory is
// watched instead of the file itself.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go w.loop()
	log.Debug().Str("path", w.path).Msg("Watching config file for changes")
	return nil
}

func (w *Watcher) loop() {
	// Debounce: editors fire several events per save
	var reloadTimer *time.Timer

	for {
		select {
		case <-w.stopChan:
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(500*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	stat, err := os.Stat(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Config file unreadable after change event")
		return
	}
	if !stat.ModTime().After(w.lastModTime) {
		return
	}
	w.lastModTime = stat.ModTime()

	cfg, err := Load(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Reload skipped: new configuration is invalid")
		return
	}

	log.Info().Str("path", w.path).Msg("Configuration reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Stop ends the watch loop and releases the fsnotify watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		_ = w.watcher.Close()
	})
}
