package pluginsys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, root, folder, toml string) string {
	t.Helper()
	dir := filepath.Join(root, folder)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.toml"), []byte(toml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	return dir
}

func TestInspectAllAcceptsValidManifest(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "weather", `
name = "weather"
version = "1.0.0"
main = "main.go"
author = "a"
description = "d"
`)

	d := NewDiscovery(root)
	names, err := d.InspectAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, names)

	m, ok := d.Manifest("weather")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", m.Version)

	folder, ok := d.Folder("weather")
	require.True(t, ok)
	assert.Equal(t, "weather", folder)
}

func TestInspectAllSkipsMissingRequiredFields(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.toml"), []byte(`name = "broken"`), 0o644))

	d := NewDiscovery(root)
	names, err := d.InspectAll()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestInspectAllSkipsMissingMainEntry(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "nomain")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.toml"), []byte(`
name = "nomain"
version = "1.0.0"
main = "missing.go"
`), 0o644))

	d := NewDiscovery(root)
	names, err := d.InspectAll()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestInspectAllSkipsDuplicateNamesFirstWins(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "a_folder", `
name = "dup"
version = "1.0.0"
main = "main.go"
`)
	writeManifest(t, root, "b_folder", `
name = "dup"
version = "2.0.0"
main = "main.go"
`)

	d := NewDiscovery(root)
	names, err := d.InspectAll()
	require.NoError(t, err)
	require.Len(t, names, 1)

	m, ok := d.Manifest("dup")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", m.Version, "first discovered manifest should win")
}

func TestEnsureSanitizedAssignsCollisionFreeNames(t *testing.T) {
	d := NewDiscovery(t.TempDir())
	a := d.ensureSanitized("my-plugin")
	b := d.ensureSanitized("my!plugin")
	assert.Equal(t, "my_plugin", a)
	assert.Equal(t, "my_plugin_1", b)

	same := d.ensureSanitized("my-plugin")
	assert.Equal(t, a, same, "repeat calls for the same plugin return the cached name")
}

func TestEnsureSanitizedGuardsLeadingDigit(t *testing.T) {
	d := NewDiscovery(t.TempDir())
	s := d.ensureSanitized("123plugin")
	assert.Equal(t, "_123plugin", s)
}

func TestPluginNameForFolderReversesFolder(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "weather_folder", `
name = "weather"
version = "1.0.0"
main = "main.go"
`)

	d := NewDiscovery(root)
	_, err := d.InspectAll()
	require.NoError(t, err)

	name, ok := d.PluginNameForFolder("weather_folder")
	require.True(t, ok)
	assert.Equal(t, "weather", name)

	_, ok = d.PluginNameForFolder("nonexistent")
	assert.False(t, ok)
}
