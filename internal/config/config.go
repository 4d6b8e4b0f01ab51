package config

import (
	"fmt"
	"path/filepath"

	"go-media-harvester/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// Defaults used when a value is missing or invalid in the config file.
const (
	DefaultMaxConcurrent      = 5
	DefaultVideoFormat        = "best[height<=720]/best"
	DefaultAudioCodec         = "mp3"
	DefaultFetchTimeoutSec    = 30
	DefaultStallTimeoutSec    = 120
	DefaultProgressIntervalMs = 500
	DefaultViewportWidth      = 1366
	DefaultViewportHeight     = 900
	DefaultRenderTimeoutSec   = 45
	DefaultListenAddr         = "127.0.0.1:8001"
	DefaultSavePath           = "downloads"
)

// LoadConfig reads the configuration from the specified path (defaulting to "config.toml")
// and fills in defaults for anything left unset.
// On error the returned config still carries the defaults so callers may continue.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml"
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		return ApplyDefaults(models.Config{}), fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	cfg = ApplyDefaults(cfg)
	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// ApplyDefaults returns cfg with zero or invalid values replaced by defaults.
func ApplyDefaults(cfg models.Config) models.Config {
	if cfg.SavePath == "" {
		log.Debugf("SavePath is not set, defaulting to %s", DefaultSavePath)
		cfg.SavePath = DefaultSavePath
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.SavePath, ".harvester_db")
		log.Debugf("DatabasePath is not set, defaulting to %s", cfg.DatabasePath)
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(cfg.SavePath, ".harvester.bleve")
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = filepath.Join(cfg.SavePath, ".reports")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.VideoFormat == "" {
		cfg.VideoFormat = DefaultVideoFormat
	}
	if cfg.AudioCodec == "" {
		cfg.AudioCodec = DefaultAudioCodec
	}
	if cfg.FetchTimeoutSec <= 0 {
		cfg.FetchTimeoutSec = DefaultFetchTimeoutSec
	}
	if cfg.StallTimeoutSec <= 0 {
		cfg.StallTimeoutSec = DefaultStallTimeoutSec
	}
	if cfg.ProgressIntervalMs <= 0 {
		cfg.ProgressIntervalMs = DefaultProgressIntervalMs
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = DefaultViewportWidth
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = DefaultViewportHeight
	}
	if cfg.RenderTimeoutSec <= 0 {
		cfg.RenderTimeoutSec = DefaultRenderTimeoutSec
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	return cfg
}
