// =============================================================================
// Mirage Layer 0 - Configuration with Environment Overrides
// =============================================================================
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is Layer 0's tuning surface: which ProfileFlags preset to
// run under, and the sizing/threshold knobs for each wired
// collaborator (C3-C6).
type Config struct {
	Profile   ProfileConfig   `yaml:"profile"`
	Cache     CacheConfig     `yaml:"cache"`
	RateStats RateStatsConfig `yaml:"rate_stats"`
	Bloom     BloomConfig     `yaml:"bloom"`
	Breaker   BreakerConfig   `yaml:"breaker"`
}

// ProfileConfig selects one of the two canonical ProfileFlags presets,
// or an explicit custom combination.
type ProfileConfig struct {
	// Preset is "home", "enterprise", or any other non-empty value for
	// Custom below. An empty preset is defaulted to "home".
	Preset string `yaml:"preset"`

	Custom CustomProfileConfig `yaml:"custom"`
}

type CustomProfileConfig struct {
	DropEnabled             bool `yaml:"drop_enabled"`
	BloomDrop               bool `yaml:"bloom_drop"`
	BenignSampling          bool `yaml:"benign_sampling"`
	LatencyAdaptiveSecurity bool `yaml:"latency_adaptive_security"`
}

type CacheConfig struct {
	MaxSize int `yaml:"max_size"`
	TTLSec  int `yaml:"ttl_sec"`
}

type RateStatsConfig struct {
	Window              int `yaml:"window"`
	CleanupAfterIdleSec int `yaml:"cleanup_after_idle_sec"`
}

type BloomConfig struct {
	ExpectedElements  uint64  `yaml:"expected_elements"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

type BreakerConfig struct {
	FailureThreshold   int `yaml:"failure_threshold"`
	ResetTimeoutSec    int `yaml:"reset_timeout_sec"`
	LatencyThresholdMs int `yaml:"latency_threshold_ms"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loading it from
// MIRAGE_CONFIG_PATH (default "mirage.yaml") on first call.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("MIRAGE_CONFIG_PATH", "mirage.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides, then
// fills in any zero-valued fields with defaults.
func (c *Config) applyEnvOverrides() {
	c.Profile.Preset = getEnv("MIRAGE_PROFILE", c.Profile.Preset)
	c.Profile.Custom.DropEnabled = getEnvBool("MIRAGE_DROP_ENABLED", c.Profile.Custom.DropEnabled)
	c.Profile.Custom.BloomDrop = getEnvBool("MIRAGE_BLOOM_DROP", c.Profile.Custom.BloomDrop)
	c.Profile.Custom.BenignSampling = getEnvBool("MIRAGE_BENIGN_SAMPLING", c.Profile.Custom.BenignSampling)
	c.Profile.Custom.LatencyAdaptiveSecurity = getEnvBool("MIRAGE_LATENCY_ADAPTIVE_SECURITY", c.Profile.Custom.LatencyAdaptiveSecurity)

	if v := getEnvInt("MIRAGE_CACHE_MAX_SIZE", 0); v > 0 {
		c.Cache.MaxSize = v
	}
	if v := getEnvInt("MIRAGE_CACHE_TTL_SEC", 0); v > 0 {
		c.Cache.TTLSec = v
	}
	if v := getEnvInt("MIRAGE_RATE_WINDOW", 0); v > 0 {
		c.RateStats.Window = v
	}
	if v := getEnvInt("MIRAGE_RATE_CLEANUP_IDLE_SEC", 0); v > 0 {
		c.RateStats.CleanupAfterIdleSec = v
	}
	if v := getEnvFloat("MIRAGE_BLOOM_FP_RATE", 0); v > 0 {
		c.Bloom.FalsePositiveRate = v
	}
	if v := getEnvInt("MIRAGE_BREAKER_FAILURE_THRESHOLD", 0); v > 0 {
		c.Breaker.FailureThreshold = v
	}
	if v := getEnvInt("MIRAGE_BREAKER_RESET_TIMEOUT_SEC", 0); v > 0 {
		c.Breaker.ResetTimeoutSec = v
	}
	if v := getEnvInt("MIRAGE_BREAKER_LATENCY_THRESHOLD_MS", 0); v > 0 {
		c.Breaker.LatencyThresholdMs = v
	}

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Profile.Preset == "" {
		c.Profile.Preset = "home"
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 10_000
	}
	if c.Cache.TTLSec == 0 {
		c.Cache.TTLSec = 600
	}
	if c.RateStats.Window == 0 {
		c.RateStats.Window = 100
	}
	if c.RateStats.CleanupAfterIdleSec == 0 {
		c.RateStats.CleanupAfterIdleSec = 300
	}
	if c.Bloom.ExpectedElements == 0 {
		c.Bloom.ExpectedElements = 100_000
	}
	if c.Bloom.FalsePositiveRate == 0 {
		c.Bloom.FalsePositiveRate = 0.01
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 10
	}
	if c.Breaker.ResetTimeoutSec == 0 {
		c.Breaker.ResetTimeoutSec = 30
	}
	if c.Breaker.LatencyThresholdMs == 0 {
		c.Breaker.LatencyThresholdMs = 5
	}
}

// CacheTTL returns the cache TTL as a time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSec) * time.Second
}

// BreakerResetTimeout returns the breaker reset timeout as a time.Duration.
func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.Breaker.ResetTimeoutSec) * time.Second
}

// BreakerLatencyThreshold returns the breaker latency threshold as a time.Duration.
func (c *Config) BreakerLatencyThreshold() time.Duration {
	return time.Duration(c.Breaker.LatencyThresholdMs) * time.Millisecond
}

// IsEnterprise reports whether the configured preset is "enterprise".
func (c *Config) IsEnterprise() bool {
	return c.Profile.Preset == "enterprise"
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
