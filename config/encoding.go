package config

import (
	"io"

	"gopkg.in/yaml.v3"
)

// newYAMLEncoder wraps yaml.v3's Encoder so the two atomic-write paths in
// this package (the full bot.yaml document and the plugin-config-only
// rewrite) share one indentation convention.
func newYAMLEncoder(w io.Writer) *yaml.Encoder {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc
}
