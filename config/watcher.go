package config

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/logger"
)

// ReloadCallback is invoked with the freshly reloaded config whenever
// bot.yaml changes on disk. A callback's own error is logged but never
// stops the remaining callbacks from running.
type ReloadCallback func(*BotConfig) error

// ConfigWatcher watches bot.yaml for hand-edits and debounces rapid
// successive writes into a single reload. This is the ambient
// counterpart to the plugin loader's own polling watcher: bot.yaml is a
// single file an operator edits directly, so OS-level notification
// (fsnotify) is the right tool, unlike the plugin tree's ordering and
// debounce-coalescing requirements.
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu             sync.Mutex
	callbacks      []ReloadCallback
	debounceTimer  *time.Timer
	debouncePeriod time.Duration

	ownWriteMu sync.Mutex
	ownWrite   bool
}

// NewConfigWatcher opens an fsnotify watch on path's containing
// directory (watching the directory, not the file itself, survives
// editors that replace the file via rename-on-save rather than
// in-place write).
func NewConfigWatcher(path string, debounce time.Duration) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "config: create fsnotify watcher")
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "config: watch directory %q", dir)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &ConfigWatcher{
		path:           path,
		watcher:        watcher,
		debouncePeriod: debounce,
	}, nil
}

// OnReload registers a callback invoked after every successful reload.
func (cw *ConfigWatcher) OnReload(cb ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, cb)
}

// MarkOwnWrite suppresses the next change notification, so a save this
// process just performed doesn't trigger a spurious reload cycle.
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.ownWriteMu.Lock()
	defer cw.ownWriteMu.Unlock()
	cw.ownWrite = true
}

func (cw *ConfigWatcher) checkOwnWrite() bool {
	cw.ownWriteMu.Lock()
	defer cw.ownWriteMu.Unlock()
	if cw.ownWrite {
		cw.ownWrite = false
		return true
	}
	return false
}

// Start begins watching on a background goroutine.
func (cw *ConfigWatcher) Start() {
	go cw.watchLoop()
}

// Stop closes the underlying fsnotify watcher.
func (cw *ConfigWatcher) Stop() error {
	return cw.watcher.Close()
}

func (cw *ConfigWatcher) watchLoop() {
	target := filepath.Base(cw.path)
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if strings.HasSuffix(ev.Name, ".tmp") {
				continue
			}
			if cw.checkOwnWrite() {
				logger.GatewayInfow("config watcher ignoring own write", "file", ev.Name)
				continue
			}
			cw.scheduleReload()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.GatewayWarnw("config watcher error", logger.FieldError, err)
		}
	}
}

func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	cfg, _, err := Load(cw.path)
	if err != nil {
		logger.GatewayWarnw("config reload failed", logger.FieldError, err)
		return
	}

	cw.mu.Lock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			logger.GatewayWarnw("config reload callback failed", logger.FieldError, err)
		}
	}
}
