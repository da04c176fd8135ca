package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Library server configuration
	Library struct {
		Host                     string  `yaml:"host"`
		APIKey                   string  `yaml:"api_key"`
		LibraryID                string  `yaml:"library_id"`
		RateLimitIntervalSeconds float64 `yaml:"rate_limit_interval_seconds"`
		MaxConcurrent            int     `yaml:"max_concurrent"`
		BatchMaxConcurrent       int     `yaml:"batch_max_concurrent"`
	} `yaml:"library"`

	// Catalog configuration
	Catalog struct {
		AuthFilePath             string  `yaml:"auth_file_path"`
		AuthPassword             string  `yaml:"auth_password"`
		Locale                   string  `yaml:"locale"`
		RateLimitIntervalSeconds float64 `yaml:"rate_limit_interval_seconds"`
		RequestsPerMinute        int     `yaml:"requests_per_minute"`
		BurstSize                int     `yaml:"burst_size"`
		BackoffMultiplier        float64 `yaml:"backoff_multiplier"`
		MaxBackoffSeconds        int     `yaml:"max_backoff_seconds"`
		MaxConcurrent            int     `yaml:"max_concurrent"`
		AllowInsecureAuthFile    bool    `yaml:"allow_insecure_auth_file"`
	} `yaml:"catalog"`

	// Cache configuration
	Cache struct {
		Enabled          bool   `yaml:"enabled"`
		DBPath           string `yaml:"db_path"`
		DefaultTTLHours  int    `yaml:"default_ttl_hours"`
		LibraryTTLHours  int    `yaml:"library_ttl_hours"`
		CatalogTTLHours  int    `yaml:"catalog_ttl_hours"`
		MaxMemoryEntries int    `yaml:"max_memory_entries"`
	} `yaml:"cache"`

	// Quality analyzer thresholds
	Quality struct {
		ExcellentKbps      float64  `yaml:"excellent_kbps"`
		GoodKbps           float64  `yaml:"good_kbps"`
		AcceptableKbps     float64  `yaml:"acceptable_kbps"`
		LowKbps            float64  `yaml:"low_kbps"`
		SpatialCodecs      []string `yaml:"spatial_codecs"`
		SpatialMinChannels int      `yaml:"spatial_min_channels"`
		PremiumContainers  []string `yaml:"premium_containers"`
		GoodDealThreshold  float64  `yaml:"good_deal_threshold"`
		SubscriptionMarker string   `yaml:"subscription_marker"`
	} `yaml:"quality"`
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides. Defaults are set first so a missing file still
// yields a usable configuration.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", configFile)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		// Re-apply defaults for anything the file zeroed out
		cfg.applyDefaults()
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Library.RateLimitIntervalSeconds <= 0 {
		c.Library.RateLimitIntervalSeconds = 0.1
	}
	if c.Library.MaxConcurrent <= 0 {
		c.Library.MaxConcurrent = 5
	}
	if c.Library.BatchMaxConcurrent <= 0 {
		c.Library.BatchMaxConcurrent = 20
	}

	if c.Catalog.Locale == "" {
		c.Catalog.Locale = "us"
	}
	if c.Catalog.RateLimitIntervalSeconds <= 0 {
		c.Catalog.RateLimitIntervalSeconds = 0.5
	}
	if c.Catalog.RequestsPerMinute <= 0 {
		c.Catalog.RequestsPerMinute = 20
	}
	if c.Catalog.BurstSize <= 0 {
		c.Catalog.BurstSize = 5
	}
	if c.Catalog.BackoffMultiplier <= 0 {
		c.Catalog.BackoffMultiplier = 2.0
	}
	if c.Catalog.MaxBackoffSeconds <= 0 {
		c.Catalog.MaxBackoffSeconds = 60
	}
	if c.Catalog.MaxConcurrent <= 0 {
		c.Catalog.MaxConcurrent = 5
	}

	if c.Cache.DBPath == "" {
		c.Cache.DBPath = "./cache/shelfscout.db"
	}
	if c.Cache.DefaultTTLHours <= 0 {
		c.Cache.DefaultTTLHours = 24
	}
	if c.Cache.LibraryTTLHours <= 0 {
		c.Cache.LibraryTTLHours = 6
	}
	if c.Cache.CatalogTTLHours <= 0 {
		c.Cache.CatalogTTLHours = 72
	}
	if c.Cache.MaxMemoryEntries <= 0 {
		c.Cache.MaxMemoryEntries = 500
	}

	if c.Quality.ExcellentKbps <= 0 {
		c.Quality.ExcellentKbps = 256
	}
	if c.Quality.GoodKbps <= 0 {
		c.Quality.GoodKbps = 128
	}
	if c.Quality.AcceptableKbps <= 0 {
		c.Quality.AcceptableKbps = 110
	}
	if c.Quality.LowKbps <= 0 {
		c.Quality.LowKbps = 64
	}
	if len(c.Quality.SpatialCodecs) == 0 {
		c.Quality.SpatialCodecs = []string{"eac3", "truehd", "ac3"}
	}
	if c.Quality.SpatialMinChannels <= 0 {
		c.Quality.SpatialMinChannels = 6
	}
	if len(c.Quality.PremiumContainers) == 0 {
		c.Quality.PremiumContainers = []string{"m4b", "m4a"}
	}
	if c.Quality.GoodDealThreshold <= 0 {
		c.Quality.GoodDealThreshold = 8.0
	}
	if c.Quality.SubscriptionMarker == "" {
		c.Quality.SubscriptionMarker = "Plus"
	}
}

func (c *Config) loadFromEnv() {
	if v := getEnv("LIBRARY_HOST", ""); v != "" {
		c.Library.Host = v
	}
	if v := getEnv("LIBRARY_API_KEY", ""); v != "" {
		c.Library.APIKey = v
	}
	if v := getEnv("LIBRARY_ID", ""); v != "" {
		c.Library.LibraryID = v
	}
	if v := getEnv("CATALOG_AUTH_FILE", ""); v != "" {
		c.Catalog.AuthFilePath = v
	}
	if v := getEnv("CATALOG_AUTH_PASSWORD", ""); v != "" {
		c.Catalog.AuthPassword = v
	}
	if v := getEnv("CACHE_DB_PATH", ""); v != "" {
		c.Cache.DBPath = v
	}
	if v := getIntFromEnv("CACHE_MAX_MEMORY_ENTRIES", 0); v > 0 {
		c.Cache.MaxMemoryEntries = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	if c.Catalog.BackoffMultiplier < 1 {
		return fmt.Errorf("catalog.backoff_multiplier must be >= 1, got %v", c.Catalog.BackoffMultiplier)
	}
	if c.Quality.GoodKbps > c.Quality.ExcellentKbps {
		return fmt.Errorf("quality.good_kbps (%v) must not exceed quality.excellent_kbps (%v)",
			c.Quality.GoodKbps, c.Quality.ExcellentKbps)
	}
	if c.Quality.LowKbps > c.Quality.AcceptableKbps {
		return fmt.Errorf("quality.low_kbps (%v) must not exceed quality.acceptable_kbps (%v)",
			c.Quality.LowKbps, c.Quality.AcceptableKbps)
	}
	return nil
}

// LibraryRateInterval returns the library inter-request spacing as a Duration
func (c *Config) LibraryRateInterval() time.Duration {
	return time.Duration(c.Library.RateLimitIntervalSeconds * float64(time.Second))
}

// CatalogRateInterval returns the catalog inter-request spacing as a Duration
func (c *Config) CatalogRateInterval() time.Duration {
	return time.Duration(c.Catalog.RateLimitIntervalSeconds * float64(time.Second))
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getIntFromEnv(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
