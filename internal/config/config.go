// Package config provides configuration management for mediacache with
// YAML file and environment variable support.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete cache subsystem configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Memory     MemoryConfig     `yaml:"memory"`
	Session    SessionConfig    `yaml:"session"`
	Prefetch   PrefetchConfig   `yaml:"prefetch"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents global settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// MemoryConfig represents memory manager settings
type MemoryConfig struct {
	DefaultAssetSize int64 `yaml:"default_asset_size"`
	ProbeEnabled     bool  `yaml:"probe_enabled"`
	GCHintEnabled    bool  `yaml:"gc_hint_enabled"`
}

// SessionConfig represents session cache settings
type SessionConfig struct {
	URLTTL       time.Duration `yaml:"url_ttl"`
	MetadataTTL  time.Duration `yaml:"metadata_ttl"`
	MaxCacheSize string        `yaml:"max_cache_size"` // advisory, not a hard cap
}

// PrefetchConfig represents prefetch orchestrator settings
type PrefetchConfig struct {
	Enabled           bool          `yaml:"enabled"`
	TopCandidates     int           `yaml:"top_candidates"`
	ViewHistoryCap    int           `yaml:"view_history_cap"`
	SearchHistoryCap  int           `yaml:"search_history_cap"`
	InterBatchDelay   time.Duration `yaml:"inter_batch_delay"`
	ResolveTimeout    time.Duration `yaml:"resolve_timeout"`
	OfflineAssetLimit int           `yaml:"offline_asset_limit"`
	BehaviorKey       string        `yaml:"behavior_key"`
}

// ResolverConfig represents signed-URL resolver settings
type ResolverConfig struct {
	Region         string        `yaml:"region"`
	Bucket         string        `yaml:"bucket"`
	Endpoint       string        `yaml:"endpoint"`
	ForcePathStyle bool          `yaml:"force_path_style"`
	PresignExpiry  time.Duration `yaml:"presign_expiry"`
	AccessKeyID    string        `yaml:"access_key_id"`
	SecretKey      string        `yaml:"secret_key"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Memory: MemoryConfig{
			DefaultAssetSize: 100 * 1024, // 100KB when size is unknown
			ProbeEnabled:     true,
			GCHintEnabled:    true,
		},
		Session: SessionConfig{
			URLTTL:       4 * time.Hour,
			MetadataTTL:  15 * time.Minute,
			MaxCacheSize: "50MB",
		},
		Prefetch: PrefetchConfig{
			Enabled:           true,
			TopCandidates:     10,
			ViewHistoryCap:    50,
			SearchHistoryCap:  20,
			InterBatchDelay:   100 * time.Millisecond,
			ResolveTimeout:    10 * time.Second,
			OfflineAssetLimit: 10,
			BehaviorKey:       "library-behavior-data",
		},
		Resolver: ResolverConfig{
			Region:        "us-east-1",
			PresignExpiry: 4 * time.Hour,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Port:      9090,
				Path:      "/metrics",
				Namespace: "mediacache",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("MEDIACACHE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("MEDIACACHE_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}

	if val := os.Getenv("MEDIACACHE_URL_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Session.URLTTL = duration
		}
	}
	if val := os.Getenv("MEDIACACHE_METADATA_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Session.MetadataTTL = duration
		}
	}
	if val := os.Getenv("MEDIACACHE_MAX_CACHE_SIZE"); val != "" {
		c.Session.MaxCacheSize = val
	}

	if val := os.Getenv("MEDIACACHE_PREFETCH_ENABLED"); val != "" {
		c.Prefetch.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("MEDIACACHE_RESOLVE_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Prefetch.ResolveTimeout = duration
		}
	}

	if val := os.Getenv("MEDIACACHE_RESOLVER_REGION"); val != "" {
		c.Resolver.Region = val
	}
	if val := os.Getenv("MEDIACACHE_RESOLVER_BUCKET"); val != "" {
		c.Resolver.Bucket = val
	}
	if val := os.Getenv("MEDIACACHE_RESOLVER_ENDPOINT"); val != "" {
		c.Resolver.Endpoint = val
	}
	if val := os.Getenv("AWS_ACCESS_KEY_ID"); val != "" {
		c.Resolver.AccessKeyID = val
	}
	if val := os.Getenv("AWS_SECRET_ACCESS_KEY"); val != "" {
		c.Resolver.SecretKey = val
	}

	if val := os.Getenv("MEDIACACHE_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("MEDIACACHE_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Monitoring.Metrics.Port = port
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Session.URLTTL <= 0 {
		return fmt.Errorf("url_ttl must be greater than 0")
	}
	if c.Session.MetadataTTL <= 0 {
		return fmt.Errorf("metadata_ttl must be greater than 0")
	}
	if c.Prefetch.TopCandidates <= 0 {
		return fmt.Errorf("top_candidates must be greater than 0")
	}
	if c.Prefetch.ViewHistoryCap <= 0 || c.Prefetch.SearchHistoryCap <= 0 {
		return fmt.Errorf("history caps must be greater than 0")
	}
	if _, err := ParseSize(c.Session.MaxCacheSize); err != nil {
		return fmt.Errorf("invalid max_cache_size: %w", err)
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// ParseSize parses a human-readable size string like "50MB" into bytes
func ParseSize(size string) (int64, error) {
	size = strings.TrimSpace(strings.ToUpper(size))
	if size == "" {
		return 0, fmt.Errorf("empty size string")
	}

	multipliers := []struct {
		suffix string
		factor int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, m := range multipliers {
		if strings.HasSuffix(size, m.suffix) {
			numStr := strings.TrimSuffix(size, m.suffix)
			num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number %q: %w", numStr, err)
			}
			return num * m.factor, nil
		}
	}

	num, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", size, err)
	}
	return num, nil
}
