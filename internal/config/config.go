// Package config loads uploader settings from the environment or a file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/forestrie/go-vodupload/upload"
)

// Config holds every tunable of the uploader. Each field can be set in a
// YAML, JSON, TOML or .env file and overridden from the environment.
type Config struct {
	API      APIConfig      `yaml:"api" json:"api" toml:"api"`
	Transfer TransferConfig `yaml:"transfer" json:"transfer" toml:"transfer"`
	Identity IdentityConfig `yaml:"identity" json:"identity" toml:"identity"`
}

// APIConfig selects the metadata API and the signing scope.
type APIConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint" toml:"endpoint" env:"VODUPLOAD_ENDPOINT" env-default:"https://vod.bytedanceapi.com"`
	Region    string `yaml:"region" json:"region" toml:"region" env:"VODUPLOAD_REGION" env-default:"cn-north-1"`
	Service   string `yaml:"service" json:"service" toml:"service" env:"VODUPLOAD_SERVICE" env-default:"vod"`
	Version   string `yaml:"version" json:"version" toml:"version" env:"VODUPLOAD_VERSION" env-default:"2020-11-19"`
	SpaceName string `yaml:"space_name" json:"space_name" toml:"space_name" env:"VODUPLOAD_SPACE_NAME" env-default:"aweme"`
	FileType  string `yaml:"file_type" json:"file_type" toml:"file_type" env:"VODUPLOAD_FILE_TYPE" env-default:"video"`

	Timeout time.Duration `yaml:"timeout" json:"timeout" toml:"timeout" env:"VODUPLOAD_HTTP_TIMEOUT" env-default:"2m"`
}

// TransferConfig tunes how file bytes reach the storage node.
type TransferConfig struct {
	ChunkSize          int64 `yaml:"chunk_size" json:"chunk_size" toml:"chunk_size" env:"VODUPLOAD_CHUNK_SIZE" env-default:"5242880"`
	SmallFileThreshold int64 `yaml:"small_file_threshold" json:"small_file_threshold" toml:"small_file_threshold" env:"VODUPLOAD_SMALL_FILE_THRESHOLD" env-default:"5242880"`
	Concurrency        int   `yaml:"concurrency" json:"concurrency" toml:"concurrency" env:"VODUPLOAD_CONCURRENCY" env-default:"1"`
	AllowPartialChunks bool  `yaml:"allow_partial_chunks" json:"allow_partial_chunks" toml:"allow_partial_chunks" env:"VODUPLOAD_ALLOW_PARTIAL_CHUNKS" env-default:"false"`
}

// IdentityConfig carries the caller identity sent as query parameters.
type IdentityConfig struct {
	AppID  string `yaml:"app_id" json:"app_id" toml:"app_id" env:"VODUPLOAD_APP_ID"`
	UserID string `yaml:"user_id" json:"user_id" toml:"user_id" env:"VODUPLOAD_USER_ID"`
}

// ErrInvalidConfig is returned by Validate and Load for unusable settings.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads path when it is set and the environment otherwise. Environment
// variables win over values from the file.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects sizes and counts the uploader cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.API.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.API.Region == "" || c.API.Service == "" {
		errs = append(errs, errors.New("region and service are required"))
	}
	if c.Transfer.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.Transfer.ChunkSize))
	}
	if c.Transfer.SmallFileThreshold <= 0 {
		errs = append(errs, fmt.Errorf("small file threshold must be positive, got %d", c.Transfer.SmallFileThreshold))
	}
	if c.Transfer.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Transfer.Concurrency))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.API.Timeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// UploadAPIConfig maps the API section and identity to upload.APIConfig.
func (c Config) UploadAPIConfig() upload.APIConfig {
	identity := make(map[string]string)
	if c.Identity.AppID != "" {
		identity["app_id"] = c.Identity.AppID
	}
	if c.Identity.UserID != "" {
		identity["user_id"] = c.Identity.UserID
	}
	return upload.APIConfig{
		Endpoint:  c.API.Endpoint,
		Version:   c.API.Version,
		SpaceName: c.API.SpaceName,
		FileType:  c.API.FileType,
		Identity:  identity,
	}
}

// UploadOptions maps the transfer section to upload.Options.
func (c Config) UploadOptions(logger *slog.Logger) upload.Options {
	return upload.Options{
		ChunkSize:          c.Transfer.ChunkSize,
		SmallFileThreshold: c.Transfer.SmallFileThreshold,
		Concurrency:        c.Transfer.Concurrency,
		AllowPartialChunks: c.Transfer.AllowPartialChunks,
		Logger:             logger,
	}
}

// HTTPClient returns a client with the configured timeout.
func (c Config) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.API.Timeout}
}
