package config

import (
	"fmt"

	"go-mangadex-upload/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// Defaults applied when a field is missing from config.toml.
const (
	DefaultConfigPath          = "config.toml"
	DefaultApiUrl              = "https://api.mangadex.org"
	DefaultUploadsFolder       = "to_upload"
	DefaultUploadedFolder      = "uploaded"
	DefaultNameIDMapFile       = "name_id_map.json"
	DefaultDatabasePath        = ".mdupload.db"
	DefaultBleveIndexPath      = ".mdupload.bleve"
	DefaultImagesPerBatch      = 10
	DefaultUploadRetry         = 3
	DefaultRatelimitSeconds    = 2
	DefaultRequestsPerSecond   = 5.0
	DefaultApiClientTimeoutSec = 60
)

// LoadConfig reads the configuration from the specified path (defaulting to "config.toml")
// and fills in defaults for anything left unset.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = DefaultConfigPath
	}
	cfg := models.Config{SkipDuplicates: true}
	if _, err := toml.DecodeFile(configFilePath, &cfg); err != nil {
		return Defaults(), fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	ApplyDefaults(&cfg)

	if cfg.Username == "" || cfg.Password == "" {
		log.Warn("Warning: Username/Password are not set in config.toml, only a stored session can be used")
	}

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// Defaults returns a config with every default applied.
func Defaults() models.Config {
	cfg := models.Config{SkipDuplicates: true}
	ApplyDefaults(&cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields in place.
func ApplyDefaults(cfg *models.Config) {
	if cfg.ApiUrl == "" {
		cfg.ApiUrl = DefaultApiUrl
	}
	if cfg.UploadsFolder == "" {
		log.Debugf("UploadsFolder not set, defaulting to %s", DefaultUploadsFolder)
		cfg.UploadsFolder = DefaultUploadsFolder
	}
	if cfg.UploadedFolder == "" {
		log.Debugf("UploadedFolder not set, defaulting to %s", DefaultUploadedFolder)
		cfg.UploadedFolder = DefaultUploadedFolder
	}
	if cfg.NameIDMapFile == "" {
		cfg.NameIDMapFile = DefaultNameIDMapFile
	}
	if cfg.DatabasePath == "" {
		log.Debugf("DatabasePath not set, defaulting to %s", DefaultDatabasePath)
		cfg.DatabasePath = DefaultDatabasePath
	}
	if cfg.BleveIndexPath == "" {
		cfg.BleveIndexPath = DefaultBleveIndexPath
	}
	if cfg.ImagesPerBatch <= 0 {
		cfg.ImagesPerBatch = DefaultImagesPerBatch
	}
	if cfg.UploadRetry <= 0 {
		cfg.UploadRetry = DefaultUploadRetry
	}
	if cfg.RatelimitSeconds < 0 {
		log.Warnf("RatelimitSeconds %d is negative, using %d", cfg.RatelimitSeconds, DefaultRatelimitSeconds)
		cfg.RatelimitSeconds = DefaultRatelimitSeconds
	}
	if cfg.RatelimitSeconds == 0 {
		cfg.RatelimitSeconds = DefaultRatelimitSeconds
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.ApiDelayMs < 0 {
		cfg.ApiDelayMs = 0
	}
	if cfg.ApiClientTimeoutSec <= 0 {
		cfg.ApiClientTimeoutSec = DefaultApiClientTimeoutSec
	}
}
