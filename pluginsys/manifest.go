// Package pluginsys discovers, resolves, loads, unloads, and hot-reloads
// plugins from a directory tree of manifest.toml-described packages.
package pluginsys

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/logger"
)

// Manifest is the decoded shape of a plugin's manifest.toml.
type Manifest struct {
	Name         string            `toml:"name"`
	Version      string            `toml:"version"`
	Main         string            `toml:"main"`
	Author       string            `toml:"author"`
	Description  string            `toml:"description"`
	Dependencies map[string]string `toml:"dependencies"`
}

var sanitizePattern = regexp.MustCompile(`[^0-9a-zA-Z_]`)

// Discovery walks a plugin directory, decoding every manifest.toml it
// finds and assigning sanitized, collision-free package names.
type Discovery struct {
	root string

	manifests map[string]Manifest
	folders   map[string]string // plugin name -> folder name
	sanitized map[string]string
	used      map[string]bool
}

// NewDiscovery constructs a Discovery rooted at dir.
func NewDiscovery(dir string) *Discovery {
	return &Discovery{
		root:      dir,
		manifests: make(map[string]Manifest),
		folders:   make(map[string]string),
		sanitized: make(map[string]string),
		used:      make(map[string]bool),
	}
}

// InspectAll scans root for subdirectories carrying a manifest.toml with
// all of name/version/main set, and an existing main entry. Duplicate
// plugin names are logged and skipped (first one found wins). Returns
// the names of every plugin accepted.
func (d *Discovery) InspectAll() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, errors.Wrapf(err, "pluginsys: read plugin directory %q", d.root)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, ok, err := d.inspectOne(filepath.Join(d.root, entry.Name()), entry.Name())
		if err != nil {
			logger.PluginErrorw("failed to inspect plugin candidate", "folder", entry.Name(), logger.FieldError, err)
			continue
		}
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *Discovery) inspectOne(dir, folderName string) (string, bool, error) {
	manifestPath := filepath.Join(dir, "manifest.toml")
	if _, err := os.Stat(manifestPath); err != nil {
		return "", false, nil
	}

	var m Manifest
	if _, err := toml.DecodeFile(manifestPath, &m); err != nil {
		return "", false, errors.Wrapf(err, "pluginsys: decode %q", manifestPath)
	}
	if m.Name == "" || m.Version == "" || m.Main == "" {
		logger.PluginErrorw("manifest missing required field", logger.FieldManifest, manifestPath)
		return "", false, nil
	}
	if !d.entryExists(dir, m.Main) {
		logger.PluginErrorw("manifest main entry not found", logger.FieldManifest, m.Name, "main", m.Main)
		return "", false, nil
	}
	if _, exists := d.folders[m.Name]; exists {
		logger.PluginErrorw("duplicate plugin name, skipping", logger.FieldPlugin, m.Name, "folder", folderName)
		return "", false, nil
	}

	d.ensureSanitized(m.Name)
	d.folders[m.Name] = folderName
	d.manifests[m.Name] = m
	return m.Name, true, nil
}

func (d *Discovery) entryExists(dir, main string) bool {
	if _, err := os.Stat(filepath.Join(dir, main)); err == nil {
		return true
	}
	if !strings.HasSuffix(main, ".so") {
		if _, err := os.Stat(filepath.Join(dir, main+".so")); err == nil {
			return true
		}
	}
	return false
}

// ensureSanitized returns a package-friendly name for plugin, generating
// and caching one the first time it's seen. Collisions are suffixed
// _1, _2, ...
func (d *Discovery) ensureSanitized(plugin string) string {
	if s, ok := d.sanitized[plugin]; ok {
		return s
	}
	base := sanitizePattern.ReplaceAllString(plugin, "_")
	if base == "" {
		base = "_plugin"
	} else if base[0] >= '0' && base[0] <= '9' {
		base = "_" + base
	}
	candidate := base
	for i := 1; d.used[candidate]; i++ {
		candidate = base + "_" + strconv.Itoa(i)
	}
	d.used[candidate] = true
	d.sanitized[plugin] = candidate
	return candidate
}

// Manifest returns the decoded manifest for plugin, if discovered.
func (d *Discovery) Manifest(plugin string) (Manifest, bool) {
	m, ok := d.manifests[plugin]
	return m, ok
}

// Folder returns the folder name a plugin was discovered under.
func (d *Discovery) Folder(plugin string) (string, bool) {
	f, ok := d.folders[plugin]
	return f, ok
}

// SanitizedName returns the package-safe name assigned to plugin.
func (d *Discovery) SanitizedName(plugin string) (string, bool) {
	s, ok := d.sanitized[plugin]
	return s, ok
}

// PluginNameForFolder reverses Folder: given a first-level directory
// name under root (as the file watcher reports it), returns the plugin
// name it belongs to.
func (d *Discovery) PluginNameForFolder(folder string) (string, bool) {
	for name, f := range d.folders {
		if f == folder {
			return name, true
		}
	}
	return "", false
}

// Manifests returns every discovered manifest, keyed by plugin name.
func (d *Discovery) Manifests() map[string]Manifest {
	out := make(map[string]Manifest, len(d.manifests))
	for k, v := range d.manifests {
		out[k] = v
	}
	return out
}
