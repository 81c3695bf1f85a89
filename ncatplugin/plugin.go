// Package ncatplugin defines the contract a plugin's compiled shared
// object must satisfy, and the Context capability handle the loader
// hands it at construction time.
package ncatplugin

import "context"

// Plugin is the lifecycle contract every plugin implements. A plugin's
// exported New constructor returns one, already holding its Context.
type Plugin interface {
	// Init runs synchronously right after construction, before Load.
	Init(ctx context.Context) error
	// Load runs after Init; by the time it returns the plugin is
	// considered running and its subscriptions are live.
	Load(ctx context.Context) error
	// Close runs on unload, before the loader tears down anything the
	// Context registered on the plugin's behalf.
	Close(ctx context.Context) error
}

// Meta is the subset of a plugin's manifest.toml a loaded plugin can
// introspect about itself at runtime.
type Meta struct {
	Name        string
	Author      string
	Description string
	Version     string
}
