// Package lifecycle drives the bot through prepare-startup,
// core-execution, and cleanup, the same three-stage shape the teacher's
// server construction and the original Python lifecycle manager both
// follow, adapted to Go's explicit context cancellation instead of
// asyncio tasks and events.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ncatbot/ncatbot-go/config"
	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/eventbus"
	"github.com/ncatbot/ncatbot-go/gateway"
	"github.com/ncatbot/ncatbot-go/logger"
	"github.com/ncatbot/ncatbot-go/ncatplugin"
	"github.com/ncatbot/ncatbot-go/pluginsys"
	"github.com/ncatbot/ncatbot-go/preupload"
	"github.com/ncatbot/ncatbot-go/rbac"
	"github.com/ncatbot/ncatbot-go/service"
)

// ErrAlreadyRunning is returned by Run/RunBackground when the manager
// is already driving a bot.
var ErrAlreadyRunning = errors.New("lifecycle: already running")

// Options mirrors the teacher's start-args bag: the subset of bot.yaml
// callers commonly want to override per-invocation rather than edit on
// disk, plus flags that change what CoreExecution actually does.
type Options struct {
	ConfigPath     string
	SkipPluginLoad bool
}

// dispatchBox lets a gateway.Client's Dispatch callback be supplied at
// construction time while the Dispatcher it forwards to is only built
// after the client (and thus its API facade) exists. Set is called
// once, before any plugin can be loaded.
type dispatchBox struct {
	mu sync.Mutex
	fn func(ctx context.Context, payload map[string]any)
}

func (b *dispatchBox) set(fn func(ctx context.Context, payload map[string]any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fn = fn
}

func (b *dispatchBox) dispatch(ctx context.Context, payload map[string]any) {
	b.mu.Lock()
	fn := b.fn
	b.mu.Unlock()
	if fn != nil {
		fn(ctx, payload)
	}
}

// Manager owns the bot's process-wide dependency graph and drives it
// through its lifecycle. The zero value is not usable; construct with
// NewManager.
type Manager struct {
	cfg *config.BotConfig

	bus          *eventbus.Bus
	services     *service.Manager
	rbacEngine   *rbac.Engine
	pluginConfig *config.PluginConfigStore
	loader       *pluginsys.Loader
	dispatchBox  *dispatchBox

	skipPluginLoad bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// NewManager constructs an idle Manager. Call PrepareStartup (directly,
// or via Run/RunBackground) before anything else.
func NewManager() *Manager {
	return &Manager{}
}

// PrepareStartup loads configuration and wires every service factory,
// but starts nothing: no socket is dialed, no plugin is loaded. It is
// always safe to call even if a previous run failed, since it rebuilds
// the whole dependency graph from scratch.
func (m *Manager) PrepareStartup(opts Options) error {
	cfg, _, err := config.Load(opts.ConfigPath)
	if err != nil {
		return errors.Wrap(err, "lifecycle: load config")
	}
	m.cfg = cfg
	m.skipPluginLoad = opts.SkipPluginLoad

	m.bus = eventbus.New(cfg.Gateway.RequestTimeout)
	m.rbacEngine = rbac.NewEngine()
	m.pluginConfig = config.NewPluginConfigStore(opts.ConfigPath)
	m.services = service.NewManager()
	m.dispatchBox = &dispatchBox{}

	m.services.Register(service.NameWebSocket, func(map[string]any) (service.Service, error) {
		var limit rate.Limit
		if cfg.Gateway.RateLimitPerSec > 0 {
			limit = rate.Limit(cfg.Gateway.RateLimitPerSec)
		}
		return gateway.New(gateway.Options{
			URL:       cfg.Gateway.URL,
			RateLimit: limit,
			Burst:     cfg.Gateway.RateLimitBurst,
			Dispatch:  m.dispatchBox.dispatch,
		}), nil
	}, nil)

	m.services.Register(service.NamePluginConfig, func(map[string]any) (service.Service, error) {
		return m.pluginConfig, nil
	}, nil)

	m.services.Register(service.NamePreUpload, func(map[string]any) (service.Service, error) {
		client, ok := service.Get2[*gateway.Client](m.services, service.NameWebSocket)
		if !ok {
			return nil, errors.New("lifecycle: websocket service not loaded before preupload")
		}
		return preupload.New(client, cfg.PreUpload.ChunkSizeBytes, cfg.PreUpload.FileRetention), nil
	}, nil)

	m.loader = pluginsys.NewLoader(cfg.Plugin.PluginsDir, m.bus, m.services, m.rbacEngine)

	return nil
}

// newPluginContext builds the Context a freshly loaded plugin receives,
// binding it to this Manager's shared bus, services, RBAC engine, and
// plugin-config store.
func (m *Manager) newPluginContext(name, workDir string) *ncatplugin.Context {
	return ncatplugin.NewContext(name, workDir, m.bus, m.services, m.rbacEngine, m.pluginConfig)
}

// coreExecution loads every service, wires the gateway dispatcher,
// loads plugins (unless skipped), starts the plugin hot-reload watcher,
// and then blocks until ctx is cancelled. onReady is called exactly
// once, after startup finishes and before the blocking wait, so
// RunBackground can return to its caller without waiting for shutdown.
// Cleanup always runs before returning, mirroring the Python
// implementation's try/finally.
func (m *Manager) coreExecution(ctx context.Context, onReady func()) error {
	defer m.cleanup(context.Background())

	if err := m.services.LoadAll(ctx); err != nil {
		return errors.Wrap(err, "lifecycle: load services")
	}

	client, ok := service.Get2[*gateway.Client](m.services, service.NameWebSocket)
	if !ok {
		return errors.New("lifecycle: websocket service missing after load")
	}
	api := gateway.NewAPI(client)
	dispatcher := gateway.NewDispatcher(m.bus, api)
	m.dispatchBox.set(dispatcher.Dispatch)

	if !m.skipPluginLoad {
		if err := m.loader.LoadAll(ctx, m.newPluginContext); err != nil {
			return errors.Wrap(err, "lifecycle: load plugins")
		}
		m.loader.StartWatching(ctx, m.cfg.Plugin.WatchInterval, m.cfg.Plugin.DebounceDelay, m.newPluginContext)
	}

	logger.Infow("ncatbot startup complete")
	onReady()

	<-ctx.Done()
	return nil
}

func (m *Manager) cleanup(ctx context.Context) {
	if m.loader != nil {
		m.loader.StopWatching()
	}
	m.services.CloseAll(ctx)
	logger.Infow("ncatbot resources released")
}

// Run performs a synchronous, blocking startup: it runs PrepareStartup
// then coreExecution on the calling goroutine, returning only once ctx
// is cancelled or startup fails. Intended for the CLI entrypoint.
func (m *Manager) Run(ctx context.Context, opts Options) error {
	if err := m.PrepareStartup(opts); err != nil {
		return err
	}
	return m.coreExecution(ctx, func() {})
}

// RunBackground starts the bot on a background goroutine and returns as
// soon as startup has either completed or failed, without waiting for
// the bot to stop. Call Shutdown to request a stop; Running reports
// whether the background run is still active.
func (m *Manager) RunBackground(parent context.Context, opts Options) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.mu.Unlock()

	if err := m.PrepareStartup(opts); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(parent)
	startupDone := make(chan struct{})
	done := make(chan struct{})
	var readyOnce sync.Once
	ready := func() { readyOnce.Do(func() { close(startupDone) }) }

	m.mu.Lock()
	m.running = true
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)

		err := m.coreExecution(runCtx, ready)

		m.mu.Lock()
		m.running = false
		m.runErr = err
		m.mu.Unlock()

		// If coreExecution failed before reaching onReady, this is
		// what unblocks the caller waiting below.
		ready()
	}()

	<-startupDone
	m.mu.Lock()
	running, runErr := m.running, m.runErr
	m.mu.Unlock()
	if !running && runErr != nil {
		return runErr
	}
	return nil
}

// Shutdown cancels the background run started by RunBackground and
// waits for cleanup to finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}

	logger.Infow("shutting down ncatbot")
	cancel()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(30 * time.Second):
			return errors.New("lifecycle: shutdown timed out waiting for cleanup")
		}
	}
	return nil
}

// Running reports whether a background run is currently active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
