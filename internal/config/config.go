// Package config loads the ambient defaults every fetch-engine component
// falls back on when a caller doesn't set a FetchOptions field explicitly:
// staging/cache directories, retry policy, bandwidth caps, and concurrency
// limits. The layering mirrors tdm's xdg+yaml config loader, with
// the torrent-specific section replaced by fetch and cache sections.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "pulith"

// Config holds the configuration options for the fetch engine.
type Config struct {
	MaxConcurrentFetches int          `yaml:"maxConcurrentFetches,omitempty"`
	Fetch                *FetchConfig `yaml:"fetch,omitempty"`
	Cache                *CacheConfig `yaml:"cache,omitempty"`
}

// FetchConfig holds the defaults applied to a FetchOptions that doesn't set
// a given field.
type FetchConfig struct {
	StagingDir              string        `yaml:"stagingDir,omitempty"`
	Segments                int           `yaml:"segments,omitempty"`
	MaxRetries              int           `yaml:"maxRetries,omitempty"`
	RetryDelay              time.Duration `yaml:"retryDelay,omitempty"`
	MaxBandwidthBytesPerSec int64         `yaml:"maxBandwidthBytesPerSec,omitempty"`
	RedirectLimit           int           `yaml:"redirectLimit,omitempty"`
}

// CacheConfig holds the defaults for the conditional-metadata cache.
type CacheConfig struct {
	Dir           string `yaml:"dir,omitempty"`
	MemoryEntries int    `yaml:"memoryEntries,omitempty"`
}

func (f *FetchConfig) IsConfig() bool { return true }
func (c *CacheConfig) IsConfig() bool { return true }

// GetConfig reads the configuration file and returns a Config struct. If
// the configuration file does not exist, it returns the default
// configuration.
func GetConfig() (*Config, error) {
	configFilePath := filepath.Join(xdg.ConfigHome, configFileName)
	defaults := DefaultConfig()

	b, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	fetchCfg := zeroOr(cfg.Fetch, defaults.Fetch)
	cacheCfg := zeroOr(cfg.Cache, defaults.Cache)

	return &Config{
		MaxConcurrentFetches: zeroOr(cfg.MaxConcurrentFetches, defaults.MaxConcurrentFetches),
		Fetch: &FetchConfig{
			StagingDir:              zeroOr(fetchCfg.StagingDir, defaults.Fetch.StagingDir),
			Segments:                zeroOr(fetchCfg.Segments, defaults.Fetch.Segments),
			MaxRetries:              zeroOr(fetchCfg.MaxRetries, defaults.Fetch.MaxRetries),
			RetryDelay:              zeroOr(fetchCfg.RetryDelay, defaults.Fetch.RetryDelay),
			MaxBandwidthBytesPerSec: zeroOr(fetchCfg.MaxBandwidthBytesPerSec, defaults.Fetch.MaxBandwidthBytesPerSec),
			RedirectLimit:           zeroOr(fetchCfg.RedirectLimit, defaults.Fetch.RedirectLimit),
		},
		Cache: &CacheConfig{
			Dir:           zeroOr(cacheCfg.Dir, defaults.Cache.Dir),
			MemoryEntries: zeroOr(cacheCfg.MemoryEntries, defaults.Cache.MemoryEntries),
		},
	}, nil
}

// DefaultConfig returns the built-in defaults, before any config file is
// consulted.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentFetches: maxConcurrentFetches,
		Fetch: &FetchConfig{
			StagingDir:              stagingDir,
			Segments:                segments,
			MaxRetries:              maxRetries,
			RetryDelay:              retryDelay,
			MaxBandwidthBytesPerSec: maxBandwidthBPS,
			RedirectLimit:           redirectLimit,
		},
		Cache: &CacheConfig{
			Dir:           cacheDir,
			MemoryEntries: cacheMemoryEntries,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
