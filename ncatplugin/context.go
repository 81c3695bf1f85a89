package ncatplugin

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ncatbot/ncatbot-go/config"
	"github.com/ncatbot/ncatbot-go/eventbus"
	"github.com/ncatbot/ncatbot-go/rbac"
	"github.com/ncatbot/ncatbot-go/service"
)

// Context is the capability handle the loader passes to a plugin's New
// constructor. Every registration method stamps the plugin's own name
// as owner so the loader's unload can undo exactly what this plugin (and
// no other) registered, without the plugin having to track its own ids.
type Context struct {
	PluginName string
	WorkDir    string

	Bus          *eventbus.Bus
	Services     *service.Manager
	RBAC         *rbac.Engine
	PluginConfig *config.PluginConfigStore

	scheduler *Scheduler

	mu                  sync.Mutex
	declaredPermissions []string
}

// NewContext constructs the Context for pluginName, rooted at workDir.
func NewContext(pluginName, workDir string, bus *eventbus.Bus, services *service.Manager, rbacEngine *rbac.Engine, pluginConfig *config.PluginConfigStore) *Context {
	return &Context{
		PluginName:   pluginName,
		WorkDir:      workDir,
		Bus:          bus,
		Services:     services,
		RBAC:         rbacEngine,
		PluginConfig: pluginConfig,
		scheduler:    newScheduler(),
	}
}

// Subscribe registers handler against typeExpr, stamping this plugin as
// the subscription's owner.
func (c *Context) Subscribe(typeExpr string, handler eventbus.Handler, opts eventbus.SubscribeOptions) (uuid.UUID, error) {
	opts.Owner = c.PluginName
	return c.Bus.Subscribe(typeExpr, handler, opts)
}

// DeclarePermission registers path with the RBAC engine and records it
// as owned by this plugin so Cleanup can un-declare it on unload.
func (c *Context) DeclarePermission(path string) error {
	if err := c.RBAC.AddPermission(path); err != nil {
		return err
	}
	c.mu.Lock()
	c.declaredPermissions = append(c.declaredPermissions, path)
	c.mu.Unlock()
	return nil
}

// RegisterConfig declares a config item under this plugin's namespace.
func (c *Context) RegisterConfig(name string, item config.ConfigItem) error {
	return c.PluginConfig.RegisterConfig(c.PluginName, name, item)
}

// GetConfig reads a previously registered (or defaulted) config value.
func (c *Context) GetConfig(name string, def any) any {
	return c.PluginConfig.Get(c.PluginName, name, def)
}

// SetConfig writes a config value without forcing an immediate save.
func (c *Context) SetConfig(name string, value any) (any, error) {
	return c.PluginConfig.Set(c.PluginName, name, value)
}

// SetConfigAtomic writes a config value and persists immediately.
func (c *Context) SetConfigAtomic(name string, value any) (any, error) {
	return c.PluginConfig.SetAtomic(c.PluginName, name, value)
}

// SchedulePeriodic runs task every interval on its own goroutine until
// cancelled (directly, or en masse by Cleanup on unload).
func (c *Context) SchedulePeriodic(interval time.Duration, task TaskFunc) uuid.UUID {
	return c.scheduler.schedule(c.PluginName, interval, task)
}

// CancelTask cancels a single scheduled task by id.
func (c *Context) CancelTask(id uuid.UUID) bool {
	return c.scheduler.Cancel(id)
}

// Cleanup undoes every registration this Context made: unsubscribes all
// owned event handlers, cancels all owned scheduled tasks, un-declares
// all owned permission paths, and drops the plugin's config
// declarations (stored config values are kept for the next load).
// Called by the loader during unload, after
// the plugin's own Close has returned.
func (c *Context) Cleanup() {
	c.Bus.UnsubscribeOwner(c.PluginName)
	c.scheduler.cancelOwner(c.PluginName)

	c.mu.Lock()
	perms := c.declaredPermissions
	c.declaredPermissions = nil
	c.mu.Unlock()
	for _, p := range perms {
		c.RBAC.RemovePermission(p)
	}

	c.PluginConfig.UnloadPlugin(c.PluginName)
}
