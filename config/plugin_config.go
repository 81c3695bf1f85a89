package config

import (
	"context"
	"os"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/logger"
)

// ErrConfigAlreadyDeclared is returned by RegisterConfig when the same
// plugin declares the same config name twice in one session.
var ErrConfigAlreadyDeclared = errors.New("config: plugin config already declared this session")

// ConfigItem is the declaration recorded by RegisterConfig: a name, its
// default, and the optional callback run on every successful Set.
type ConfigItem struct {
	Name         string
	Description  string
	DefaultValue any
	OnChange     func(old, new any)
}

// PluginConfigStore holds a two-level value map (plugin -> name -> value)
// and a parallel declaration map, backed by the plugin_config section of
// bot.yaml. It implements service.Service so the service manager can own
// its lifecycle.
type PluginConfigStore struct {
	path string

	mu      sync.Mutex
	values  map[string]map[string]any
	items   map[string]map[string]*ConfigItem
	dirty   bool
}

// NewPluginConfigStore constructs a store that persists into path (the
// same bot.yaml the rest of the config package loads).
func NewPluginConfigStore(path string) *PluginConfigStore {
	return &PluginConfigStore{
		path:   path,
		values: make(map[string]map[string]any),
		items:  make(map[string]map[string]*ConfigItem),
	}
}

// Load reads the existing plugin_config section of path, if any. Part of
// service.Service.
func (s *PluginConfigStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "config: read %q", s.path)
	}

	var doc struct {
		PluginConfig map[string]map[string]any `yaml:"plugin_config"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrapf(err, "config: decode plugin_config section of %q", s.path)
	}
	if doc.PluginConfig != nil {
		s.values = doc.PluginConfig
	}
	logger.PluginInfow("plugin config loaded", "plugins", len(s.values))
	return nil
}

// Close flushes any unsaved changes. Part of service.Service.
func (s *PluginConfigStore) Close(ctx context.Context) error {
	return s.save()
}

// RegisterConfig declares name under plugin, seeding its default value
// if no value is stored yet (deep-copied for maps/slices). Returns
// ErrConfigAlreadyDeclared if plugin already declared name this session.
func (s *PluginConfigStore) RegisterConfig(plugin, name string, item ConfigItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[plugin]; !ok {
		s.items[plugin] = make(map[string]*ConfigItem)
	}
	if _, exists := s.items[plugin][name]; exists {
		return errors.Wrapf(ErrConfigAlreadyDeclared, "%s.%s", plugin, name)
	}
	item.Name = name
	s.items[plugin][name] = &item

	if _, ok := s.values[plugin]; !ok {
		s.values[plugin] = make(map[string]any)
	}
	if _, ok := s.values[plugin][name]; !ok {
		s.values[plugin][name] = deepCopyValue(item.DefaultValue)
		s.dirty = true
	}
	return nil
}

// Get returns the stored value for plugin.name, or def if unset.
func (s *PluginConfigStore) Get(plugin, name string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[plugin][name]; ok {
		return v
	}
	return def
}

// Set stores value under plugin.name, runs the item's OnChange callback
// (if one was registered and the value actually changed), and marks the
// store dirty. Does not persist — see SetAtomic.
func (s *PluginConfigStore) Set(plugin, name string, value any) (old any, err error) {
	s.mu.Lock()
	if _, ok := s.values[plugin]; !ok {
		s.values[plugin] = make(map[string]any)
	}
	old = s.values[plugin][name]
	s.values[plugin][name] = value
	s.dirty = true
	item := s.items[plugin][name]
	s.mu.Unlock()

	if item != nil && item.OnChange != nil && !reflect.DeepEqual(old, value) {
		item.OnChange(old, value)
	}
	return old, nil
}

// SetAtomic sets then immediately persists.
func (s *PluginConfigStore) SetAtomic(plugin, name string, value any) (old any, err error) {
	old, err = s.Set(plugin, name, value)
	if err != nil {
		return old, err
	}
	return old, s.save()
}

// UnloadPlugin drops the declaration map for plugin, so a subsequent
// load may freshly declare its configs. Stored values are intentionally
// kept — per SPEC_FULL §4.7/§8.5, a plugin's operator-set config values
// survive unload so they're still in place on the next load; only the
// declaration is transient.
func (s *PluginConfigStore) UnloadPlugin(plugin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, plugin)
}

// RegisteredConfigs returns every config item plugin has declared.
func (s *PluginConfigStore) RegisteredConfigs(plugin string) map[string]*ConfigItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*ConfigItem, len(s.items[plugin]))
	for k, v := range s.items[plugin] {
		out[k] = v
	}
	return out
}

func (s *PluginConfigStore) save() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]map[string]any, len(s.values))
	for plugin, vals := range s.values {
		copyVals := make(map[string]any, len(vals))
		for k, v := range vals {
			copyVals[k] = v
		}
		snapshot[plugin] = copyVals
	}
	s.mu.Unlock()

	existing := make(map[string]any)
	if data, err := os.ReadFile(s.path); err == nil {
		if err := yaml.Unmarshal(data, &existing); err != nil {
			return errors.Wrapf(err, "config: decode existing document %q", s.path)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "config: read %q", s.path)
	}
	existing["plugin_config"] = snapshot

	if err := atomicWriteYAML(s.path, existing); err != nil {
		return err
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	logger.PluginInfow("plugin config persisted", "path", s.path)
	return nil
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopyValue(val)
		}
		return out
	default:
		return v
	}
}
