package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper() {
	viper.Reset()
}

func TestLoadUsesEmbeddedDefaultsWhenNoConfigFilePresent(t *testing.T) {
	resetViper()
	t.Setenv("HOME", t.TempDir())

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "transcribe-dispatch", settings.Main.Name)
	assert.Equal(t, "durable", settings.Queue.Backend)
	assert.Equal(t, 5555, settings.Queue.PushPort)
	assert.Equal(t, 16000, settings.Audio.SampleRateHz)
	assert.Equal(t, 1, settings.Audio.Channels)
	assert.Equal(t, 3, settings.Tracker.MaxRetries)
}

func TestCreateDefaultConfigWritesEmbeddedYAML(t *testing.T) {
	resetViper()
	dir := t.TempDir()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dir)

	err := createDefaultConfig([]string{dir})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
}

func TestGetDefaultConfigPathsReturnsAtLeastOnePath(t *testing.T) {
	paths, err := GetDefaultConfigPaths()
	require.NoError(t, err)
	assert.NotEmpty(t, paths)
}

func TestSettingIsASingletonAfterFirstLoad(t *testing.T) {
	resetViper()
	t.Setenv("HOME", t.TempDir())

	s1 := Setting()
	s2 := Setting()
	assert.Same(t, s1, s2)
}
