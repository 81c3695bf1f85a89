package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterConfigSeedsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	s := NewPluginConfigStore(path)
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.RegisterConfig("weather", "api_key", ConfigItem{DefaultValue: "none"}))
	assert.Equal(t, "none", s.Get("weather", "api_key", "fallback"))
}

func TestRegisterConfigTwiceFails(t *testing.T) {
	s := NewPluginConfigStore(filepath.Join(t.TempDir(), "bot.yaml"))
	require.NoError(t, s.RegisterConfig("weather", "api_key", ConfigItem{DefaultValue: "none"}))
	err := s.RegisterConfig("weather", "api_key", ConfigItem{DefaultValue: "none"})
	assert.ErrorIs(t, err, ErrConfigAlreadyDeclared)
}

func TestSetRunsOnChange(t *testing.T) {
	s := NewPluginConfigStore(filepath.Join(t.TempDir(), "bot.yaml"))
	var gotOld, gotNew any
	require.NoError(t, s.RegisterConfig("weather", "api_key", ConfigItem{
		DefaultValue: "none",
		OnChange: func(old, new any) {
			gotOld, gotNew = old, new
		},
	}))

	_, err := s.Set("weather", "api_key", "real-key")
	require.NoError(t, err)
	assert.Equal(t, "none", gotOld)
	assert.Equal(t, "real-key", gotNew)
}

func TestSetAtomicPersistsAndSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	s := NewPluginConfigStore(path)
	require.NoError(t, s.RegisterConfig("weather", "api_key", ConfigItem{DefaultValue: "none"}))
	_, err := s.SetAtomic("weather", "api_key", "real-key")
	require.NoError(t, err)

	reopened := NewPluginConfigStore(path)
	require.NoError(t, reopened.Load(context.Background()))
	assert.Equal(t, "real-key", reopened.Get("weather", "api_key", ""))
}

func TestUnloadPluginClearsDeclarationsKeepsValues(t *testing.T) {
	s := NewPluginConfigStore(filepath.Join(t.TempDir(), "bot.yaml"))
	require.NoError(t, s.RegisterConfig("weather", "api_key", ConfigItem{DefaultValue: "none"}))
	s.UnloadPlugin("weather")

	assert.Empty(t, s.RegisteredConfigs("weather"))
	require.NoError(t, s.RegisterConfig("weather", "api_key", ConfigItem{DefaultValue: "none2"}))
	assert.Equal(t, "none", s.Get("weather", "api_key", ""))
}
