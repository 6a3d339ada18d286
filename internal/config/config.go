package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Fatigue   FatigueConfig   `yaml:"fatigue"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Rules     RulesConfig     `yaml:"rules"`
	History   HistoryConfig   `yaml:"history"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// PipelineConfig holds top-level pipeline settings
type PipelineConfig struct {
	// ForceFallback starts the classifier in forced-fallback mode.
	ForceFallback bool `yaml:"force_fallback"`
}

// DedupeConfig holds duplicate-detection settings
type DedupeConfig struct {
	WindowMinutes       int     `yaml:"window_minutes"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// Window returns the dedupe window as a duration
func (c DedupeConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// FatigueConfig holds frequency and noise suppression settings
type FatigueConfig struct {
	FrequencyWindowMinutes int `yaml:"frequency_window_minutes"`
	FrequencyLimit         int `yaml:"frequency_limit"`
	SuppressionLimit       int `yaml:"suppression_limit"`
	NoiseWindowMinutes     int `yaml:"noise_window_minutes"`
	NoiseMaxUrgent         int `yaml:"noise_max_urgent"`
}

// FrequencyWindow returns the frequency window as a duration
func (c FatigueConfig) FrequencyWindow() time.Duration {
	return time.Duration(c.FrequencyWindowMinutes) * time.Minute
}

// NoiseWindow returns the noise window as a duration
func (c FatigueConfig) NoiseWindow() time.Duration {
	return time.Duration(c.NoiseWindowMinutes) * time.Minute
}

// SchedulerConfig holds deferred-delivery timing settings
type SchedulerConfig struct {
	QuietHourStart     int `yaml:"quiet_hour_start"`
	QuietHourEnd       int `yaml:"quiet_hour_end"`
	QuietResumeHour    int `yaml:"quiet_resume_hour"`
	BaseBackoffMinutes int `yaml:"base_backoff_minutes"`
	DefaultDelayMins   int `yaml:"default_delay_minutes"`
	WorkingHour        int `yaml:"working_hour"`
}

// BaseBackoff returns the frequency-limit backoff unit as a duration
func (c SchedulerConfig) BaseBackoff() time.Duration {
	return time.Duration(c.BaseBackoffMinutes) * time.Minute
}

// DefaultDelay returns the plain deferral offset as a duration
func (c SchedulerConfig) DefaultDelay() time.Duration {
	return time.Duration(c.DefaultDelayMins) * time.Minute
}

// RulesConfig holds rule-set loading settings
type RulesConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// HistoryConfig holds per-user history store settings
type HistoryConfig struct {
	Capacity int    `yaml:"capacity"`
	RedisURL string `yaml:"redis_url"` // empty = in-memory store
}

// AuditConfig holds audit log sink settings
type AuditConfig struct {
	DatabaseURL string `yaml:"database_url"` // empty = in-memory only
	MaxEntries  int    `yaml:"max_entries"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults and no file input.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Dedupe.WindowMinutes == 0 {
		cfg.Dedupe.WindowMinutes = 10
	}
	if cfg.Dedupe.SimilarityThreshold == 0 {
		cfg.Dedupe.SimilarityThreshold = 0.90
	}
	if cfg.Fatigue.FrequencyWindowMinutes == 0 {
		cfg.Fatigue.FrequencyWindowMinutes = 10
	}
	if cfg.Fatigue.FrequencyLimit == 0 {
		cfg.Fatigue.FrequencyLimit = 5
	}
	if cfg.Fatigue.SuppressionLimit == 0 {
		cfg.Fatigue.SuppressionLimit = 7
	}
	if cfg.Fatigue.NoiseWindowMinutes == 0 {
		cfg.Fatigue.NoiseWindowMinutes = 15
	}
	if cfg.Fatigue.NoiseMaxUrgent == 0 {
		cfg.Fatigue.NoiseMaxUrgent = 2
	}
	if cfg.Scheduler.QuietHourStart == 0 {
		cfg.Scheduler.QuietHourStart = 22
	}
	if cfg.Scheduler.QuietHourEnd == 0 {
		cfg.Scheduler.QuietHourEnd = 6
	}
	if cfg.Scheduler.QuietResumeHour == 0 {
		cfg.Scheduler.QuietResumeHour = 8
	}
	if cfg.Scheduler.BaseBackoffMinutes == 0 {
		cfg.Scheduler.BaseBackoffMinutes = 5
	}
	if cfg.Scheduler.DefaultDelayMins == 0 {
		cfg.Scheduler.DefaultDelayMins = 15
	}
	if cfg.Scheduler.WorkingHour == 0 {
		cfg.Scheduler.WorkingHour = 9
	}
	if cfg.History.Capacity == 0 {
		cfg.History.Capacity = 30
	}
	if cfg.Audit.MaxEntries == 0 {
		cfg.Audit.MaxEntries = 10000
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so settings can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.History.RedisURL = v
	}
	// Database override (deployment environments carry local defaults in yaml)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Audit.DatabaseURL = v
	}
	if v := os.Getenv("HISTORY_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.History.Capacity = n
		}
	}

	return cfg, nil
}
