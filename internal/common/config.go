package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Queue       QueueConfig     `toml:"queue"`
	Dedup       DedupConfig     `toml:"dedup"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Status      StatusConfig    `toml:"status"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	SMTP        SMTPConfig      `toml:"smtp"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// QueueConfig controls job listing and startup recovery behavior
type QueueConfig struct {
	DefaultPerPage int `toml:"default_per_page"` // Default page size for job list queries
	MaxPerPage     int `toml:"max_per_page"`     // Upper bound for per_page in list queries
}

// DedupConfig controls the duplicate-submission guard
type DedupConfig struct {
	TTL string `toml:"ttl"` // Lock lifetime as duration string (default: "10s")
}

// PipelineConfig controls post-generation pipeline execution
type PipelineConfig struct {
	StageTimeout string `toml:"stage_timeout"` // Hard timeout per stage as duration string (default: "90s")
}

// SchedulerConfig controls the execution mode
type SchedulerConfig struct {
	Automatic bool   `toml:"automatic"` // Automatic execution enabled (timer-driven) vs manual triggers
	Schedule  string `toml:"schedule"`  // Cron schedule for the automatic runner (default: every minute)
}

// StatusConfig controls the dashboard status distribution layer
type StatusConfig struct {
	AutomaticPollInterval string `toml:"automatic_poll_interval"` // Poll cadence in automatic mode (default: "2s")
	ManualPollInterval    string `toml:"manual_poll_interval"`    // Poll cadence in manual mode (default: "15s")
	HiddenGracePeriod     string `toml:"hidden_grace_period"`     // Suspend polling after consumer hidden this long (default: "2m")
	ThrottleInterval      string `toml:"throttle_interval"`       // Minimum interval between push deliveries per topic (default: "1s")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for content generation (default: "gemini-3-flash-preview")
	ImageModel  string  `toml:"image_model"` // Model for image generation (default: "gemini-2.5-flash-image")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for content generation (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider string `toml:"default_provider"` // Default provider: "gemini" or "claude" (default: "gemini")
}

// SMTPConfig contains outbound notification mail settings
type SMTPConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`
	UseTLS   bool   `toml:"use_tls"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in penman.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Queue: QueueConfig{
			DefaultPerPage: 25,
			MaxPerPage:     200,
		},
		Dedup: DedupConfig{
			TTL: "10s",
		},
		Pipeline: PipelineConfig{
			StageTimeout: "90s",
		},
		Scheduler: SchedulerConfig{
			Automatic: true,
			Schedule:  "*/1 * * * *",
		},
		Status: StatusConfig{
			AutomaticPollInterval: "2s",
			ManualPollInterval:    "15s",
			HiddenGracePeriod:     "2m",
			ThrottleInterval:      "1s",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-3-flash-preview",
			ImageModel:  "gemini-2.5-flash-image",
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: "gemini",
		},
		SMTP: SMTPConfig{
			Port:     587,
			UseTLS:   true,
			FromName: "Penman",
		},
	}
}

// LoadConfig loads configuration from TOML files, later files overriding
// earlier ones, then applies environment variable overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies PENMAN_* environment variables over file values
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PENMAN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("PENMAN_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PENMAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PENMAN_DATA_PATH"); v != "" {
		c.Storage.Badger.Path = v
	}
	if v := os.Getenv("PENMAN_AUTOMATIC"); v != "" {
		if auto, err := strconv.ParseBool(v); err == nil {
			c.Scheduler.Automatic = auto
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Claude.APIKey = v
	}
}

// Validate checks configuration invariants that would otherwise fail at runtime
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"dedup.ttl", c.Dedup.TTL},
		{"pipeline.stage_timeout", c.Pipeline.StageTimeout},
		{"status.automatic_poll_interval", c.Status.AutomaticPollInterval},
		{"status.manual_poll_interval", c.Status.ManualPollInterval},
		{"status.hidden_grace_period", c.Status.HiddenGracePeriod},
		{"status.throttle_interval", c.Status.ThrottleInterval},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", d.name, d.value)
		}
	}
	return nil
}

// ParseDurationOr parses a duration string, falling back to a default on error
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// StageTimeoutDuration returns the parsed per-stage timeout
func (c *Config) StageTimeoutDuration() time.Duration {
	return ParseDurationOr(c.Pipeline.StageTimeout, 90*time.Second)
}

// DedupTTLDuration returns the parsed dedup lock TTL
func (c *Config) DedupTTLDuration() time.Duration {
	return ParseDurationOr(c.Dedup.TTL, 10*time.Second)
}
