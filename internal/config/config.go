// Package config loads configuration from environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all browser configuration.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Metrics (optional — empty disables the endpoint)
	MetricsAddr string

	// AWS
	Region string

	// Bucket cache
	CacheDir     string
	CacheTTL     time.Duration
	DisableCache bool

	// Listing / preview limits
	DeepScanMaxKeys int
	PreviewBytes    int
	ProbeLimit      int

	// Download
	DownloadDir string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:        envOr("AWSS_LOG_LEVEL", "info"),
		LogFormat:       envOr("AWSS_LOG_FORMAT", "console"),
		MetricsAddr:     envOr("AWSS_METRICS_ADDR", ""),
		Region:          envOr("AWSS_REGION", ""),
		CacheDir:        envOr("AWSS_CACHE_DIR", defaultCacheDir()),
		CacheTTL:        time.Duration(envInt("AWSS_CACHE_TTL_SECONDS", 3600)) * time.Second,
		DisableCache:    envBool("AWSS_NO_CACHE", false),
		DeepScanMaxKeys: envInt("AWSS_DEEP_SCAN_MAX_KEYS", 50000),
		PreviewBytes:    envInt("AWSS_PREVIEW_BYTES", 4096),
		ProbeLimit:      envInt("AWSS_PROBE_CONCURRENCY", 16),
		DownloadDir:     envOr("AWSS_DOWNLOAD_DIR", defaultDownloadDir()),
	}
	return cfg, nil
}

// BucketCachePath returns the path of the persisted bucket cache file.
func (c *Config) BucketCachePath() string {
	return filepath.Join(c.CacheDir, "bucket-cache.json")
}

// AppConfigPath returns the path of the persisted app preferences file.
func (c *Config) AppConfigPath() string {
	return filepath.Join(c.CacheDir, "config.json")
}

func defaultCacheDir() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, "awss")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".awss"
	}
	return filepath.Join(home, ".config", "awss")
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
