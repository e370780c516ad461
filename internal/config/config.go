// ABOUTME: Wearsync configuration management.
// ABOUTME: JSON config under XDG paths plus factory helpers for the stores.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teamfit/wearsync/internal/pipeline"
	"github.com/teamfit/wearsync/internal/storage"
)

// Config stores wearsync configuration.
type Config struct {
	// DataDir is the root directory for data storage. The SQLite
	// database and the chunk store live here. Supports ~ expansion.
	// Defaults to ~/.local/share/wearsync.
	DataDir string `json:"data_dir,omitempty"`

	// ProviderBaseURL is the wearable aggregation API endpoint.
	ProviderBaseURL string `json:"provider_base_url,omitempty"`

	// ProviderAPIKey authenticates against the provider. The
	// WEARSYNC_API_KEY environment variable takes precedence.
	ProviderAPIKey string `json:"provider_api_key,omitempty"`

	// ListenAddr is the webhook server bind address.
	ListenAddr string `json:"listen_addr,omitempty"`

	// SyncLookbackDays is the routine sync date range length.
	SyncLookbackDays int `json:"sync_lookback_days,omitempty"`

	// AggregationTimeoutSeconds is how long a backfill may idle before
	// the sweeper finalizes it with partial data.
	AggregationTimeoutSeconds int `json:"aggregation_timeout_seconds,omitempty"`

	// SweepIntervalSeconds is how often the timeout sweeper runs.
	SweepIntervalSeconds int `json:"sweep_interval_seconds,omitempty"`
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return storage.DataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetAPIKey returns the provider API key, preferring the environment.
func (c *Config) GetAPIKey() string {
	if key := os.Getenv("WEARSYNC_API_KEY"); key != "" {
		return key
	}
	return c.ProviderAPIKey
}

// GetListenAddr returns the webhook bind address, defaulting to :8487.
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == "" {
		return ":8487"
	}
	return c.ListenAddr
}

// GetAggregationTimeout returns the configured backfill inactivity
// timeout.
func (c *Config) GetAggregationTimeout() time.Duration {
	if c.AggregationTimeoutSeconds <= 0 {
		return pipeline.DefaultAggregationTimeout
	}
	return time.Duration(c.AggregationTimeoutSeconds) * time.Second
}

// GetSweepInterval returns how often the timeout sweeper runs.
func (c *Config) GetSweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStorage opens the SQLite repository in the data directory.
func (c *Config) OpenStorage() (storage.Repository, error) {
	return storage.Open(filepath.Join(c.GetDataDir(), "wearsync.db"))
}

// OpenChunkStore opens the backfill chunk store in the data directory.
func (c *Config) OpenChunkStore() (*pipeline.ChunkStore, error) {
	return pipeline.OpenChunkStore(filepath.Join(c.GetDataDir(), "chunks"))
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "wearsync", "config.json")
}

// Load reads config from disk. A missing file yields defaults.
func Load() (*Config, error) {
	path := GetConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := GetConfigPath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
