package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
SavePath = "/data/media"
MaxConcurrent = 2
VideoFormat = "best"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/media", cfg.SavePath)
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.Equal(t, "best", cfg.VideoFormat)
	assert.Equal(t, filepath.Join("/data/media", ".harvester_db"), cfg.DatabasePath)
	assert.Equal(t, DefaultAudioCodec, cfg.AudioCodec)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	// Defaults are still usable.
	assert.Equal(t, DefaultMaxConcurrent, cfg.MaxConcurrent)
	assert.Equal(t, DefaultSavePath, cfg.SavePath)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("MaxConcurrent = -3\nViewportWidth = 0\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxConcurrent, cfg.MaxConcurrent)
	assert.Equal(t, DefaultViewportWidth, cfg.ViewportWidth)
}
