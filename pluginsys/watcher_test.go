package pluginsys

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcherDetectsChangeAfterInitialScan(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "weather")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	filePath := filepath.Join(pluginDir, "main.go")
	require.NoError(t, os.WriteFile(filePath, []byte("package main\n"), 0o644))

	w := NewFileWatcher(10*time.Millisecond, 10*time.Millisecond)
	w.AddWatchDir(root)

	var mu sync.Mutex
	var reloaded []string
	w.SetReloadCallback(func(dir string) {
		mu.Lock()
		reloaded = append(reloaded, dir)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	time.Sleep(30 * time.Millisecond) // let the initial scan complete

	// mtime must move forward; some filesystems have coarse mtime resolution.
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(filePath, future, future))
	require.NoError(t, os.WriteFile(filePath, []byte("package main\n// changed\n"), 0o644))
	require.NoError(t, os.Chtimes(filePath, future, future))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, r := range reloaded {
			if r == "weather" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcherIgnoresVendorDirectories(t *testing.T) {
	root := t.TempDir()
	vendorDir := filepath.Join(root, "weather", "vendor", "dep")
	require.NoError(t, os.MkdirAll(vendorDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vendorDir, "dep.go"), []byte("package dep\n"), 0o644))

	w := NewFileWatcher(10*time.Millisecond, 10*time.Millisecond)
	w.scan(root)

	w.mu.Lock()
	defer w.mu.Unlock()
	for path := range w.mtimes {
		assert.NotContains(t, path, "vendor")
	}
}

func TestFileWatcherPauseStopsDispatchNotScanning(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, "weather")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "main.go"), []byte("package main\n"), 0o644))

	w := NewFileWatcher(5*time.Millisecond, 0)
	w.AddWatchDir(root)
	w.Pause()

	var calls int
	var mu sync.Mutex
	w.SetReloadCallback(func(dir string) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	future := time.Now().Add(time.Second)
	mainPath := filepath.Join(pluginDir, "main.go")
	require.NoError(t, os.WriteFile(mainPath, []byte("package main\n// x\n"), 0o644))
	require.NoError(t, os.Chtimes(mainPath, future, future))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, calls, "paused watcher must not dispatch")
	mu.Unlock()
	assert.Greater(t, w.PendingCount(), 0, "scanning should still record the pending change while paused")

	w.Resume()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, time.Second, 10*time.Millisecond)
}
