package pluginsys

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ncatbot/ncatbot-go/logger"
)

// ReloadCallback is invoked with the first-level plugin directory name
// that changed. It runs on its own goroutine per call so a slow reload
// never stalls the scan loop.
type ReloadCallback func(pluginDir string)

// FileWatcher is a polling scanner over one or more plugin source trees.
// Deliberately not built on fsnotify: see SPEC_FULL §4.6 for why a
// plugin tree's reload-ordering and debounce-coalescing requirements are
// a better fit for polling than OS-level notification.
type FileWatcher struct {
	watchInterval time.Duration
	debounceDelay time.Duration

	mu        sync.Mutex
	watchDirs map[string]struct{}
	mtimes    map[string]time.Time
	pending   map[string]struct{}
	lastRun   time.Time
	firstScan bool

	paused   chan struct{} // closed == running; open-blocking when paused
	callback ReloadCallback

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFileWatcher constructs a watcher with the given scan interval and
// debounce delay.
func NewFileWatcher(watchInterval, debounceDelay time.Duration) *FileWatcher {
	w := &FileWatcher{
		watchInterval: watchInterval,
		debounceDelay: debounceDelay,
		watchDirs:     make(map[string]struct{}),
		mtimes:        make(map[string]time.Time),
		pending:       make(map[string]struct{}),
		paused:        make(chan struct{}),
	}
	close(w.paused) // start unpaused
	return w
}

// AddWatchDir registers a directory to scan.
func (w *FileWatcher) AddWatchDir(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watchDirs[abs] = struct{}{}
}

// SetReloadCallback installs the callback invoked for each pending
// first-level plugin directory.
func (w *FileWatcher) SetReloadCallback(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = cb
}

// Pause stops dispatch (scanning continues; changes accumulate).
func (w *FileWatcher) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.paused:
		w.paused = make(chan struct{})
	default:
	}
}

// Resume re-enables dispatch; accumulated pending changes apply on the
// next scan iteration.
func (w *FileWatcher) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.paused:
	default:
		close(w.paused)
	}
}

func (w *FileWatcher) isPaused() bool {
	select {
	case <-w.paused:
		return false
	default:
		return true
	}
}

// PendingCount reports how many first-level plugin directories are
// currently queued for reload.
func (w *FileWatcher) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Start begins the background scan loop.
func (w *FileWatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx)
}

// Stop cancels the scan loop and waits for it to exit.
func (w *FileWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		<-w.done
	}
}

func (w *FileWatcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		w.mu.Lock()
		dirs := make([]string, 0, len(w.watchDirs))
		for d := range w.watchDirs {
			dirs = append(dirs, d)
		}
		w.mu.Unlock()

		for _, dir := range dirs {
			if _, err := os.Stat(dir); err == nil {
				w.scan(dir)
			}
		}
		w.processPending()

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.watchInterval):
		}
	}
}

func (w *FileWatcher) scan(root string) {
	seen := make(map[string]bool)

	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.Contains(path, "vendor"+string(filepath.Separator)) || d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		if strings.Contains(path, string(filepath.Separator)+"vendor"+string(filepath.Separator)) {
			return nil
		}
		seen[path] = true

		info, err := d.Info()
		if err != nil {
			return nil
		}
		mtime := info.ModTime()

		w.mu.Lock()
		prior, known := w.mtimes[path]
		changed := !known || !prior.Equal(mtime)
		w.mtimes[path] = mtime
		firstScanDone := w.firstScan
		w.mu.Unlock()

		if changed && firstScanDone {
			w.markPending(path, root)
		}
		return nil
	})

	w.mu.Lock()
	var deleted []string
	for path := range w.mtimes {
		if !strings.HasPrefix(path, root) {
			continue
		}
		if !seen[path] {
			deleted = append(deleted, path)
		}
	}
	for _, path := range deleted {
		delete(w.mtimes, path)
	}
	firstScanDone := w.firstScan
	w.firstScan = true
	w.mu.Unlock()

	if firstScanDone {
		for _, path := range deleted {
			w.markPending(path, root)
		}
	}
}

func (w *FileWatcher) markPending(path, root string) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		return
	}
	firstLevel := parts[0]

	w.mu.Lock()
	w.pending[firstLevel] = struct{}{}
	w.mu.Unlock()
	logger.PluginInfow("file change detected", "plugin_dir", firstLevel, "file", path)
}

func (w *FileWatcher) processPending() {
	if w.isPaused() {
		return
	}

	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	if time.Since(w.lastRun) < w.debounceDelay {
		w.mu.Unlock()
		return
	}
	dirs := make([]string, 0, len(w.pending))
	for d := range w.pending {
		dirs = append(dirs, d)
	}
	w.pending = make(map[string]struct{})
	w.lastRun = time.Now()
	cb := w.callback
	w.mu.Unlock()

	if cb == nil {
		logger.PluginErrorw("file watcher has pending changes but no reload callback set")
		return
	}
	for _, dir := range dirs {
		go cb(dir)
	}
}
