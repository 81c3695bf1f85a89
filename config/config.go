// Package config loads and persists the bot's on-disk configuration
// document (bot.yaml) and the plugin-config sections nested inside it.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ncatbot/ncatbot-go/errors"
)

// GatewayConfig describes how to reach the OneBot-style WebSocket
// gateway this bot connects outbound to.
type GatewayConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	Token            string        `mapstructure:"token" yaml:"token"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff" yaml:"reconnect_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimitPerSec  float64       `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// PluginSystemConfig governs plugin discovery, hot reload, and optional
// remote install.
type PluginSystemConfig struct {
	PluginsDir      string        `mapstructure:"plugins_dir" yaml:"plugins_dir"`
	WatchInterval   time.Duration `mapstructure:"watch_interval" yaml:"watch_interval"`
	DebounceDelay   time.Duration `mapstructure:"debounce_delay" yaml:"debounce_delay"`
	AutoInstallDeps bool          `mapstructure:"auto_install_deps" yaml:"auto_install_deps"`
}

// PreUploadConfig controls stream-upload chunking and server-side
// retention of staged files.
type PreUploadConfig struct {
	ChunkSizeBytes  int           `mapstructure:"chunk_size_bytes" yaml:"chunk_size_bytes"`
	FileRetention   time.Duration `mapstructure:"file_retention" yaml:"file_retention"`
}

// LogConfig mirrors the teacher's theme/verbosity knobs, retargeted at
// this bot's own subsystems.
type LogConfig struct {
	Theme     string `mapstructure:"theme" yaml:"theme"`
	Verbosity int    `mapstructure:"verbosity" yaml:"verbosity"`
	JSON      bool   `mapstructure:"json" yaml:"json"`
}

// BotConfig is the full on-disk bot.yaml document. PluginConfig is a
// freeform section the plugin-config store reads and rewrites wholesale
// on every persist; config.go never interprets its contents.
type BotConfig struct {
	Debug         bool                   `mapstructure:"debug" yaml:"debug"`
	Gateway       GatewayConfig          `mapstructure:"gateway" yaml:"gateway"`
	Plugin        PluginSystemConfig     `mapstructure:"plugin" yaml:"plugin"`
	PreUpload     PreUploadConfig        `mapstructure:"preupload" yaml:"preupload"`
	Log           LogConfig              `mapstructure:"log" yaml:"log"`
	PluginConfig  map[string]any         `mapstructure:"plugin_config" yaml:"plugin_config"`
}

const envPrefix = "NCATBOT"

// SetDefaults installs every default onto v, mirroring the teacher's
// am/defaults.go in structure (one SetDefault call per leaf key).
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("gateway.url", "ws://127.0.0.1:3001")
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.reconnect_backoff", 1*time.Second)
	v.SetDefault("gateway.max_backoff", 30*time.Second)
	v.SetDefault("gateway.request_timeout", 30*time.Second)
	v.SetDefault("gateway.rate_limit_per_sec", 5.0)
	v.SetDefault("gateway.rate_limit_burst", 10)

	v.SetDefault("plugin.plugins_dir", "./plugins")
	v.SetDefault("plugin.watch_interval", 1*time.Second)
	v.SetDefault("plugin.debounce_delay", 1*time.Second)
	v.SetDefault("plugin.auto_install_deps", false)

	v.SetDefault("preupload.chunk_size_bytes", 64*1024)
	v.SetDefault("preupload.file_retention", 10*time.Minute)

	v.SetDefault("log.theme", "everforest")
	v.SetDefault("log.verbosity", 0)
	v.SetDefault("log.json", false)
}

// Load reads bot.yaml from path (creating a viper instance scoped to
// just that file — layered with environment variable overrides under
// the NCATBOT_ prefix, dots replaced with underscores) and unmarshals it
// into a BotConfig. If path does not exist, defaults alone are returned.
func Load(path string) (*BotConfig, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, nil, errors.Wrapf(err, "config: read %q", path)
			}
		}
	}

	var cfg BotConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, errors.Wrapf(err, "config: unmarshal %q", path)
	}
	if cfg.PluginConfig == nil {
		cfg.PluginConfig = make(map[string]any)
	}
	return &cfg, v, nil
}

// Save writes cfg to path as YAML via an atomic temp-file-then-rename,
// the same pattern the plugin-config store uses for its narrower
// plugin_config-only writes.
func Save(path string, cfg *BotConfig) error {
	return atomicWriteYAML(path, cfg)
}

func atomicWriteYAML(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bot-*.yaml.tmp")
	if err != nil {
		return errors.Wrapf(err, "config: create temp file in %q", dir)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := newYAMLEncoder(tmp)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "config: encode %q", path)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "config: close encoder for %q", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "config: close temp file %q", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "config: rename %q over %q", tmpPath, path)
	}
	return nil
}
