package pluginsys

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"plugin"
	"sync"
	"time"

	"github.com/hashicorp/go-getter"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/event"
	"github.com/ncatbot/ncatbot-go/eventbus"
	"github.com/ncatbot/ncatbot-go/logger"
	"github.com/ncatbot/ncatbot-go/ncatplugin"
	"github.com/ncatbot/ncatbot-go/rbac"
	"github.com/ncatbot/ncatbot-go/service"
)

// State is a plugin's position in its lifecycle.
type State int

const (
	StateUnknown State = iota
	StateDiscovered
	StateResolved
	StateInstantiated
	StateLoaded
	StateClosing
	StateUnloaded
	StateFailed
)

var ErrPluginLoad = errors.New("pluginsys: plugin load failed")

// ConstructorSymbol is the exported symbol name every plugin .so must
// register: func(*ncatplugin.Context) ncatplugin.Plugin.
const ConstructorSymbol = "New"

type loadedPlugin struct {
	manifest Manifest
	handle   *plugin.Plugin
	soPath   string
	instance ncatplugin.Plugin
	pctx     *ncatplugin.Context
	state    State
}

// Loader owns plugin discovery, dependency resolution, load/unload, and
// hot-reload for a single plugin directory tree.
type Loader struct {
	dir       string
	discovery *Discovery

	bus      *eventbus.Bus
	services *service.Manager
	rbac     *rbac.Engine

	mu      sync.Mutex
	plugins map[string]*loadedPlugin
	order   []string

	watcher   *FileWatcher
	reloadJob chan string
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewLoader constructs a Loader rooted at dir.
func NewLoader(dir string, bus *eventbus.Bus, services *service.Manager, rbacEngine *rbac.Engine) *Loader {
	return &Loader{
		dir:       dir,
		discovery: NewDiscovery(dir),
		bus:       bus,
		services:  services,
		rbac:      rbacEngine,
		plugins:   make(map[string]*loadedPlugin),
		reloadJob: make(chan string, 64),
		stopCh:    make(chan struct{}),
	}
}

// Discover runs manifest discovery and dependency resolution, returning
// the load order. It does not load anything.
func (l *Loader) Discover() ([]string, error) {
	names, err := l.discovery.InspectAll()
	if err != nil {
		return nil, err
	}
	order, err := ResolveOrder(l.discovery.Manifests())
	if err != nil {
		return nil, err
	}
	_ = names
	return order, nil
}

// LoadAll discovers, resolves, and loads every plugin in topological
// order, stopping at the first load failure (sibling plugins already
// loaded are left running; the failing one lands in StateFailed).
func (l *Loader) LoadAll(ctx context.Context, newContext func(name, workDir string) *ncatplugin.Context) error {
	order, err := l.Discover()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.order = order
	l.mu.Unlock()

	for _, name := range order {
		if err := l.Load(ctx, name, newContext); err != nil {
			return err
		}
	}
	return nil
}

// Load loads a single plugin by name. Idempotent: a plugin already in
// StateLoaded is left alone.
func (l *Loader) Load(ctx context.Context, name string, newContext func(name, workDir string) *ncatplugin.Context) error {
	l.mu.Lock()
	if lp, ok := l.plugins[name]; ok && lp.state == StateLoaded {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	manifest, ok := l.discovery.Manifest(name)
	if !ok {
		return errors.Wrapf(ErrPluginLoad, "plugin %q not discovered", name)
	}
	folder, _ := l.discovery.Folder(name)
	workDir := filepath.Join(l.dir, folder)

	soPath, err := l.resolveSOPath(workDir, manifest.Main)
	if err != nil {
		l.setState(name, StateFailed)
		return errors.Wrapf(ErrPluginLoad, "%s: %v", name, err)
	}

	return l.loadFromSO(ctx, name, manifest, workDir, soPath, newContext)
}

// loadFromSO opens soPath and drives a plugin through Init/Load. It is
// the common tail of Load (which resolves soPath from the manifest) and
// hotReload (which passes the freshly rebuilt .so directly), so a hot
// reload always opens the artifact rebuild produced rather than
// re-resolving back to the original, possibly stale, path.
func (l *Loader) loadFromSO(ctx context.Context, name string, manifest Manifest, workDir, soPath string, newContext func(name, workDir string) *ncatplugin.Context) error {
	handle, err := plugin.Open(soPath)
	if err != nil {
		l.setState(name, StateFailed)
		return errors.Wrapf(ErrPluginLoad, "%s: open %q: %v", name, soPath, err)
	}

	sym, err := handle.Lookup(ConstructorSymbol)
	if err != nil {
		l.setState(name, StateFailed)
		return errors.Wrapf(ErrPluginLoad, "%s: missing %s symbol: %v", name, ConstructorSymbol, err)
	}
	constructor, ok := sym.(func(*ncatplugin.Context) ncatplugin.Plugin)
	if !ok {
		l.setState(name, StateFailed)
		return errors.Wrapf(ErrPluginLoad, "%s: %s has the wrong signature", name, ConstructorSymbol)
	}

	pctx := newContext(name, workDir)
	instance := constructor(pctx)

	l.mu.Lock()
	l.plugins[name] = &loadedPlugin{manifest: manifest, handle: handle, soPath: soPath, instance: instance, pctx: pctx, state: StateInstantiated}
	l.mu.Unlock()

	if err := instance.Init(ctx); err != nil {
		l.setState(name, StateFailed)
		return errors.Wrapf(ErrPluginLoad, "%s: Init: %v", name, err)
	}
	if err := instance.Load(ctx); err != nil {
		l.setState(name, StateFailed)
		return errors.Wrapf(ErrPluginLoad, "%s: Load: %v", name, err)
	}

	l.setState(name, StateLoaded)
	l.bus.Publish(ctx, event.New("ncatbot.plugin_load", map[string]any{"name": name}))
	logger.PluginInfow("plugin loaded", logger.FieldPlugin, name)
	return nil
}

// resolveSOPath returns the actual .so path for a manifest's main entry,
// tolerating a main value that already carries the .so suffix.
func (l *Loader) resolveSOPath(workDir, main string) (string, error) {
	candidate := filepath.Join(workDir, main)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	withSuffix := candidate + ".so"
	if _, err := os.Stat(withSuffix); err == nil {
		return withSuffix, nil
	}
	return "", errors.Newf("no plugin object found for main %q under %s", main, workDir)
}

// Unload tears a single plugin down: publishes ncatbot.plugin_unload,
// calls Close, then Cleanup to strip every subscription, scheduled task,
// permission, and config declaration the plugin's Context registered.
func (l *Loader) Unload(ctx context.Context, name string) error {
	l.mu.Lock()
	lp, ok := l.plugins[name]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if lp.instance == nil {
		// Failed before instantiation: nothing to close or clean up.
		l.mu.Lock()
		delete(l.plugins, name)
		l.mu.Unlock()
		return nil
	}

	l.setState(name, StateClosing)
	l.bus.Publish(ctx, event.New("ncatbot.plugin_unload", map[string]any{"name": name}))

	if err := lp.instance.Close(ctx); err != nil {
		logger.PluginErrorw("plugin Close returned error", logger.FieldPlugin, name, logger.FieldError, err)
	}
	lp.pctx.Cleanup()

	l.mu.Lock()
	delete(l.plugins, name)
	l.mu.Unlock()

	l.setState(name, StateUnloaded)
	logger.PluginInfow("plugin unloaded", logger.FieldPlugin, name)
	return nil
}

// UnloadClosure unloads name and every plugin that depends on it, in
// dependent-before-dependency order.
func (l *Loader) UnloadClosure(ctx context.Context, name string) error {
	l.mu.Lock()
	order := append([]string(nil), l.order...)
	l.mu.Unlock()

	targets := dependentsClosure(l.discovery.Manifests(), name)
	reverse := UnloadOrder(order)
	for _, n := range reverse {
		if targets[n] {
			if err := l.Unload(ctx, n); err != nil {
				return err
			}
		}
	}
	return nil
}

func dependentsClosure(manifests map[string]Manifest, root string) map[string]bool {
	closure := map[string]bool{root: true}
	changed := true
	for changed {
		changed = false
		for name, m := range manifests {
			if closure[name] {
				continue
			}
			for dep := range m.Dependencies {
				if closure[dep] {
					closure[name] = true
					changed = true
					break
				}
			}
		}
	}
	return closure
}

func (l *Loader) setState(name string, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lp, ok := l.plugins[name]; ok {
		lp.state = s
	} else if s == StateFailed {
		// A plugin that fails before it is instantiated has no record
		// yet; keep one so State reports the failure.
		l.plugins[name] = &loadedPlugin{state: StateFailed}
	}
}

// State reports a plugin's current lifecycle state.
func (l *Loader) State(name string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lp, ok := l.plugins[name]; ok {
		return lp.state
	}
	return StateUnknown
}

// StartWatching attaches a polling FileWatcher to the plugin directory
// and serializes every reload it triggers through one worker goroutine,
// so concurrent changes to the same plugin directory coalesce into a
// single reload of the most recent state instead of interleaving.
func (l *Loader) StartWatching(ctx context.Context, watchInterval, debounceDelay time.Duration, newContext func(name, workDir string) *ncatplugin.Context) {
	l.watcher = NewFileWatcher(watchInterval, debounceDelay)
	l.watcher.AddWatchDir(l.dir)
	l.watcher.SetReloadCallback(func(folder string) {
		select {
		case l.reloadJob <- folder:
		case <-l.stopCh:
		}
	})

	go l.reloadWorker(ctx, newContext)
	l.watcher.Start(ctx)
}

// StopWatching stops the file watcher and the reload worker.
func (l *Loader) StopWatching() {
	if l.watcher != nil {
		l.watcher.Stop()
	}
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Loader) reloadWorker(ctx context.Context, newContext func(name, workDir string) *ncatplugin.Context) {
	for {
		select {
		case <-l.stopCh:
			return
		case folder := <-l.reloadJob:
			// Drain any further pending reloads that queued up while this
			// one was processing: repeats of a folder coalesce into one
			// reload of its latest state, and every distinct folder is
			// still reloaded once.
			folders := []string{folder}
			seen := map[string]bool{folder: true}
		drain:
			for {
				select {
				case next := <-l.reloadJob:
					if !seen[next] {
						seen[next] = true
						folders = append(folders, next)
					}
				default:
					break drain
				}
			}
			for _, f := range folders {
				l.hotReload(ctx, f, newContext)
			}
		}
	}
}

func (l *Loader) hotReload(ctx context.Context, folder string, newContext func(name, workDir string) *ncatplugin.Context) {
	name, ok := l.discovery.PluginNameForFolder(folder)
	if !ok {
		logger.PluginErrorw("reload callback for unknown plugin folder", "folder", folder)
		return
	}

	if err := l.Unload(ctx, name); err != nil {
		logger.PluginErrorw("hot reload: unload failed", logger.FieldPlugin, name, logger.FieldError, err)
		return
	}

	workDir := filepath.Join(l.dir, folder)
	manifest, ok := l.discovery.Manifest(name)
	if !ok {
		logger.PluginErrorw("hot reload: manifest vanished", logger.FieldPlugin, name)
		return
	}

	soPath, err := l.rebuild(ctx, workDir, manifest)
	if err != nil {
		logger.PluginErrorw("hot reload: rebuild failed", logger.FieldPlugin, name, logger.FieldError, err)
		return
	}

	// Open the freshly rebuilt .so directly rather than going back
	// through Load's resolveSOPath: plugin.Open caches loaded objects by
	// path, so re-opening the original manifest path would hand back the
	// stale code object instead of the rebuild.
	if err := l.loadFromSO(ctx, name, manifest, workDir, soPath, newContext); err != nil {
		logger.PluginErrorw("hot reload: reload failed", logger.FieldPlugin, name, logger.FieldError, err)
	}
}

// rebuild recompiles a plugin's source into a fresh .so at a temp path,
// since a running process can never replace an already-open .so in
// place. When the manifest's main entry isn't a .so file, the whole
// plugin directory is built as one package; when it already is a .so,
// that path is returned as is and nothing is rebuilt.
func (l *Loader) rebuild(ctx context.Context, workDir string, manifest Manifest) (string, error) {
	if filepathHasSOSuffix(manifest.Main) {
		return filepath.Join(workDir, manifest.Main), nil
	}

	out, err := os.CreateTemp("", "ncatbot-plugin-*.so")
	if err != nil {
		return "", errors.Wrap(err, "pluginsys: create temp .so")
	}
	outPath := out.Name()
	out.Close()

	cmd := exec.CommandContext(ctx, "go", "build", "-buildmode=plugin", "-o", outPath, ".")
	cmd.Dir = workDir
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outPath)
		return "", errors.Wrapf(err, "pluginsys: go build -buildmode=plugin: %s", string(output))
	}
	return outPath, nil
}

func filepathHasSOSuffix(p string) bool {
	return len(p) >= 3 && p[len(p)-3:] == ".so"
}

// Install fetches a plugin's source tree from url into the plugin
// directory under name, using go-getter so git/http/local-archive
// sources are all handled uniformly. The next Discover/LoadAll call
// picks it up like any locally authored plugin.
func Install(ctx context.Context, pluginDir, name, url string) error {
	dest := filepath.Join(pluginDir, name)
	client := &getter.Client{
		Ctx:     ctx,
		Src:     url,
		Dst:     dest,
		Mode:    getter.ClientModeAny,
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		return errors.Wrapf(err, "pluginsys: install %q from %q", name, url)
	}
	logger.PluginInfow("plugin installed", logger.FieldPlugin, name, "source", url)
	return nil
}
