// Package service provides the ordered-lifecycle registry shared
// subsystems (WebSocket client, pre-upload, message router, plugin
// config store, RBAC, file watcher, unified command registry) are
// loaded through.
package service

import (
	"context"
	"sync"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/logger"
)

// Service is the lifecycle contract every managed subsystem implements.
type Service interface {
	Load(ctx context.Context) error
	Close(ctx context.Context) error
}

// Factory constructs a fresh Service instance from its registered
// config, invoked lazily the first time the name is loaded.
type Factory func(config map[string]any) (Service, error)

// Well-known built-in service names, used by callers via Get2[T] for
// typed, IDE-friendly lookup without this package importing every
// concrete service type (which would create an import cycle with
// gateway/preupload/config/pluginsys/rbac).
const (
	NameWebSocket       = "websocket"
	NamePreUpload       = "preupload"
	NameMessageRouter   = "message_router"
	NamePluginConfig    = "plugin_config"
	NameFileWatcher     = "file_watcher"
	NameUnifiedRegistry = "unified_registry"
	NameRBAC            = "rbac"
)

// Manager owns service registration, ordered load/unload, and lookup.
type Manager struct {
	mu        sync.Mutex
	order     []string
	factories map[string]Factory
	configs   map[string]map[string]any
	instances map[string]Service
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{
		factories: make(map[string]Factory),
		configs:   make(map[string]map[string]any),
		instances: make(map[string]Service),
	}
}

// Register records factory under name for later lazy instantiation.
// Load order follows registration order.
func (m *Manager) Register(name string, factory Factory, config map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.factories[name]; !exists {
		m.order = append(m.order, name)
	}
	m.factories[name] = factory
	m.configs[name] = config
}

// Load instantiates and loads the named service if not already loaded
// (idempotent), returning the running instance.
func (m *Manager) Load(ctx context.Context, name string) (Service, error) {
	m.mu.Lock()
	if inst, ok := m.instances[name]; ok {
		m.mu.Unlock()
		return inst, nil
	}
	factory, ok := m.factories[name]
	if !ok {
		m.mu.Unlock()
		return nil, errors.Newf("service: %q is not registered", name)
	}
	config := m.configs[name]
	m.mu.Unlock()

	svc, err := factory(config)
	if err != nil {
		return nil, errors.Wrapf(err, "service: construct %q", name)
	}
	if err := svc.Load(ctx); err != nil {
		return nil, errors.Wrapf(err, "service: load %q", name)
	}

	m.mu.Lock()
	m.instances[name] = svc
	m.mu.Unlock()

	logger.Infow("service loaded", logger.FieldService, name)
	return svc, nil
}

// Unload closes and forgets the named service. A close failure is
// logged and swallowed so one service's failure never blocks the rest.
func (m *Manager) Unload(ctx context.Context, name string) {
	m.mu.Lock()
	inst, ok := m.instances[name]
	if ok {
		delete(m.instances, name)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := inst.Close(ctx); err != nil {
		logger.Errorw("service close failed", logger.FieldService, name, logger.FieldError, err)
	}
}

// LoadAll loads every registered service in registration order, stopping
// at the first failure (which propagates to the caller, leaving that
// service's instance unregistered).
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, name := range order {
		if _, err := m.Load(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// CloseAll closes every currently loaded service in reverse registration
// order. Individual failures are logged and swallowed.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		m.Unload(ctx, order[i])
	}
}

// Get returns the named service instance, if loaded.
func (m *Manager) Get(name string) (Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[name]
	return inst, ok
}

// Has reports whether name is currently loaded.
func (m *Manager) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// ListLoaded returns the names of every currently loaded service.
func (m *Manager) ListLoaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.instances))
	for name := range m.instances {
		out = append(out, name)
	}
	return out
}

// Get2 is a typed accessor: it looks up name and type-asserts the
// instance to T, returning ok=false if the service isn't loaded or
// isn't a T. Named Get2 (rather than overloading Get, which Go doesn't
// support) since Go has no generic methods — call as
// service.Get2[*gateway.Client](manager, service.NameWebSocket) from
// any package without this one needing to import
// gateway/preupload/config/pluginsys/rbac.
func Get2[T Service](m *Manager, name string) (T, bool) {
	var zero T
	inst, ok := m.Get(name)
	if !ok {
		return zero, false
	}
	typed, ok := inst.(T)
	return typed, ok
}
