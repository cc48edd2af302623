package config

import (
	"fmt"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Memory  MemoryConfig  `mapstructure:"memory" yaml:"memory"`
}

// LoggerConfig controls the zap logger construction.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes, per rotation
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// GatewayConfig configures the model gateway client.
type GatewayConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"` // "gemini" or "mock"
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	// InitialBackoff doubles on each retried attempt.
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	Temperature    float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute paces outbound calls; 0 disables the limiter.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// BrowserConfig configures the chromedp driver.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	StartURL          string        `mapstructure:"start_url" yaml:"start_url"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostActionWait    time.Duration `mapstructure:"post_action_wait" yaml:"post_action_wait"`
}

// AgentConfig bounds the navigation loop.
type AgentConfig struct {
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// FingerprintWindow is the size of the recent-click ring buffer.
	FingerprintWindow int `mapstructure:"fingerprint_window" yaml:"fingerprint_window"`
	// LoopThreshold is how many repeats of one fingerprint trigger dead-end abort.
	LoopThreshold int `mapstructure:"loop_threshold" yaml:"loop_threshold"`
	// StaleSnapshotLimit aborts after this many consecutive failed dispatches
	// that leave the page hash unchanged.
	StaleSnapshotLimit int `mapstructure:"stale_snapshot_limit" yaml:"stale_snapshot_limit"`
}

// MemoryConfig locates the persisted path-memory document.
type MemoryConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// SetDefaults registers every default value with viper. Call before Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "waypoint")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("gateway.provider", "gemini")
	v.SetDefault("gateway.model", "gemini-2.0-flash")
	v.SetDefault("gateway.api_timeout", 90*time.Second)
	v.SetDefault("gateway.max_attempts", 3)
	v.SetDefault("gateway.initial_backoff", 500*time.Millisecond)
	v.SetDefault("gateway.temperature", 0.2)
	v.SetDefault("gateway.max_tokens", 4096)
	v.SetDefault("gateway.requests_per_minute", 30)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.action_timeout", 15*time.Second)
	v.SetDefault("browser.navigation_timeout", 60*time.Second)
	v.SetDefault("browser.post_action_wait", 750*time.Millisecond)

	v.SetDefault("agent.max_steps", 25)
	v.SetDefault("agent.fingerprint_window", 8)
	v.SetDefault("agent.loop_threshold", 3)
	v.SetDefault("agent.stale_snapshot_limit", 2)

	v.SetDefault("memory.file", "~/.waypoint/paths.json")
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Agent.LoopThreshold <= 0 {
		return fmt.Errorf("agent.loop_threshold must be positive, got %d", c.Agent.LoopThreshold)
	}
	if c.Agent.FingerprintWindow < c.Agent.LoopThreshold {
		return fmt.Errorf("agent.fingerprint_window (%d) must be at least agent.loop_threshold (%d)",
			c.Agent.FingerprintWindow, c.Agent.LoopThreshold)
	}
	if c.Gateway.MaxAttempts <= 0 {
		return fmt.Errorf("gateway.max_attempts must be positive, got %d", c.Gateway.MaxAttempts)
	}
	switch c.Gateway.Provider {
	case "gemini", "mock":
	default:
		return fmt.Errorf("unknown gateway provider: %q", c.Gateway.Provider)
	}
	if c.Gateway.Provider == "gemini" && c.Gateway.APIKey == "" {
		return fmt.Errorf("gateway.api_key is required for the gemini provider")
	}
	if c.Memory.File == "" {
		return fmt.Errorf("memory.file must not be empty")
	}
	return nil
}

// Load reads one config file with defaults and WAYPOINT_* env overrides
// applied, validates it, and returns the result. The cmd layer does its own
// viper wiring for flag precedence; Load is the one-call path for embedders
// and tests.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("WAYPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MemoryFilePath expands "~" in the configured memory file location.
func (c *Config) MemoryFilePath() (string, error) {
	path, err := homedir.Expand(c.Memory.File)
	if err != nil {
		return "", fmt.Errorf("failed to expand memory file path %q: %w", c.Memory.File, err)
	}
	return path, nil
}
