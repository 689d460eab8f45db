// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Loop     LoopConfig     `mapstructure:"loop" yaml:"loop"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the headless Chrome surface.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	DeviceScaleFactor float64       `mapstructure:"device_scale_factor" yaml:"device_scale_factor"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ExtraArgs         []string      `mapstructure:"extra_args" yaml:"extra_args"`
}

// ExecutorConfig tunes action execution and screenshot capture.
type ExecutorConfig struct {
	// ReadyTimeout bounds the post-action document readiness poll.
	ReadyTimeout time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	// SettleDelay is applied after every action before capture; clicks get
	// SettleDelayClick instead so client-side frameworks have time to react.
	SettleDelay      time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	SettleDelayClick time.Duration `mapstructure:"settle_delay_click" yaml:"settle_delay_click"`
	// ScreenshotRetries is the number of capture attempts before the
	// diagnostic placeholder is synthesized.
	ScreenshotRetries int           `mapstructure:"screenshot_retries" yaml:"screenshot_retries"`
	ScreenshotBackoff time.Duration `mapstructure:"screenshot_backoff" yaml:"screenshot_backoff"`
	// ScreenshotMinBytes rejects implausibly small captures; near-empty PNGs
	// are the dominant failure mode of headless rendering.
	ScreenshotMinBytes int `mapstructure:"screenshot_min_bytes" yaml:"screenshot_min_bytes"`
	// SuppressionWindow is how long model-issued clicks are ignored after a
	// programmatic search submission.
	SuppressionWindow time.Duration `mapstructure:"suppression_window" yaml:"suppression_window"`
	DefaultWait       time.Duration `mapstructure:"default_wait" yaml:"default_wait"`
}

// LoopConfig tunes the agent loop controller.
type LoopConfig struct {
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// MaxConsecutiveWaits trips the anti-loop breaker.
	MaxConsecutiveWaits int `mapstructure:"max_consecutive_waits" yaml:"max_consecutive_waits"`
	// HaltOnExistingImage stops resolving once the turn already carries a
	// captured image. Tunable policy, see DESIGN.md.
	HaltOnExistingImage bool `mapstructure:"halt_on_existing_image" yaml:"halt_on_existing_image"`
	// RequireSafetyConfirmation halts the chain on pending safety checks
	// instead of auto-acknowledging them.
	RequireSafetyConfirmation bool `mapstructure:"require_safety_confirmation" yaml:"require_safety_confirmation"`
}

// APIConfig configures the model API client.
type APIConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	Model        string        `mapstructure:"model" yaml:"model"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	RequestsPerS float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// StoreConfig configures the optional transcript store. An empty DSN
// disables persistence entirely.
type StoreConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with pure defaults, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "operant")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.device_scale_factor", 1.0)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.navigation_timeout", "90s")

	// -- Executor --
	v.SetDefault("executor.ready_timeout", "5s")
	v.SetDefault("executor.settle_delay", "300ms")
	v.SetDefault("executor.settle_delay_click", "800ms")
	v.SetDefault("executor.screenshot_retries", 5)
	v.SetDefault("executor.screenshot_backoff", "250ms")
	v.SetDefault("executor.screenshot_min_bytes", 4096)
	v.SetDefault("executor.suppression_window", "500ms")
	v.SetDefault("executor.default_wait", "1s")

	// -- Loop --
	v.SetDefault("loop.max_iterations", 8)
	v.SetDefault("loop.max_consecutive_waits", 3)
	v.SetDefault("loop.halt_on_existing_image", true)
	v.SetDefault("loop.require_safety_confirmation", false)

	// -- API --
	v.SetDefault("api.base_url", "https://api.openai.com/v1")
	v.SetDefault("api.model", "computer-use-preview")
	v.SetDefault("api.timeout", "120s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.requests_per_second", 2.0)

	// -- Store --
	v.SetDefault("store.dsn", "")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values come from the environment, never the config file.
	v.BindEnv("api.api_key", "OPERANT_API_KEY")
	v.BindEnv("store.dsn", "OPERANT_STORE_DSN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.API.APIKey == "" {
		cfg.API.APIKey = os.Getenv("OPERANT_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser.viewport_width and browser.viewport_height must be positive")
	}
	if c.Browser.DeviceScaleFactor <= 0 {
		return fmt.Errorf("browser.device_scale_factor must be positive")
	}
	if c.Executor.ScreenshotRetries <= 0 {
		return fmt.Errorf("executor.screenshot_retries must be a positive integer")
	}
	if c.Loop.MaxIterations <= 0 {
		return fmt.Errorf("loop.max_iterations must be a positive integer")
	}
	if c.Loop.MaxConsecutiveWaits <= 0 {
		return fmt.Errorf("loop.max_consecutive_waits must be a positive integer")
	}
	return nil
}
