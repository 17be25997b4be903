// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Session() SessionConfig
	AntiDetection() AntiDetectionConfig
	Publish() PublishConfig
	Engagement() EngagementConfig
	Media() MediaConfig
	LLM() LLMConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserProfileRoot(string)

	// Anti-detection Setters
	SetAntiDetection(AntiDetectionConfig)

	// Publish Setters
	SetPublishArtifactDir(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg        LoggerConfig        `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	BrowserCfg       BrowserConfig       `mapstructure:"browser" yaml:"browser"`
	SessionCfg       SessionConfig       `mapstructure:"session" yaml:"session"`
	AntiDetectionCfg AntiDetectionConfig `mapstructure:"anti_detection" yaml:"anti_detection"`
	PublishCfg       PublishConfig       `mapstructure:"publish" yaml:"publish"`
	EngagementCfg    EngagementConfig    `mapstructure:"engagement" yaml:"engagement"`
	MediaCfg         MediaConfig         `mapstructure:"media" yaml:"media"`
	LLMCfg           LLMConfig           `mapstructure:"llm" yaml:"llm"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig               { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig           { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig             { return c.BrowserCfg }
func (c *Config) Session() SessionConfig             { return c.SessionCfg }
func (c *Config) AntiDetection() AntiDetectionConfig { return c.AntiDetectionCfg }
func (c *Config) Publish() PublishConfig             { return c.PublishCfg }
func (c *Config) Engagement() EngagementConfig       { return c.EngagementCfg }
func (c *Config) Media() MediaConfig                 { return c.MediaCfg }
func (c *Config) LLM() LLMConfig                     { return c.LLMCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)        { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserProfileRoot(dir string) { c.BrowserCfg.ProfileRoot = dir }
func (c *Config) SetAntiDetection(a AntiDetectionConfig) {
	c.AntiDetectionCfg = a
}
func (c *Config) SetPublishArtifactDir(dir string) { c.PublishCfg.ArtifactDir = dir }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. An empty URL selects the
// file-backed session vault and the log-only step ledger.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the Chrome instances driven per operation.
type BrowserConfig struct {
	// ProfileRoot holds one persistent user-data directory per platform.
	ProfileRoot       string        `mapstructure:"profile_root" yaml:"profile_root"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// SessionConfig controls where encrypted sessions live and how setup behaves.
type SessionConfig struct {
	// Backend is "file" or "postgres".
	Backend string `mapstructure:"backend" yaml:"backend"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	// Key is a base64 encoded 32 byte key. Set it via SOCIALPILOT_SESSION_KEY.
	Key          string        `mapstructure:"key" yaml:"-"`
	SetupTimeout time.Duration `mapstructure:"setup_timeout" yaml:"setup_timeout"`
}

// AntiDetectionConfig tunes the pacing that keeps automated activity human-shaped.
// It is fixed for the duration of a run.
type AntiDetectionConfig struct {
	MinDelay       time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	BatchLimit     int           `mapstructure:"batch_limit" yaml:"batch_limit"`
	BatchCooldown  time.Duration `mapstructure:"batch_cooldown" yaml:"batch_cooldown"`
	ScrollMin      int           `mapstructure:"scroll_min" yaml:"scroll_min"`
	ScrollMax      int           `mapstructure:"scroll_max" yaml:"scroll_max"`
	KeyDelayMin    time.Duration `mapstructure:"key_delay_min" yaml:"key_delay_min"`
	KeyDelayMax    time.Duration `mapstructure:"key_delay_max" yaml:"key_delay_max"`
	ActionsPerHour int           `mapstructure:"actions_per_hour" yaml:"actions_per_hour"`
}

// Merge returns a copy of the config with every non-zero field of override applied.
func (a AntiDetectionConfig) Merge(override AntiDetectionConfig) AntiDetectionConfig {
	out := a
	if override.MinDelay > 0 {
		out.MinDelay = override.MinDelay
	}
	if override.MaxDelay > 0 {
		out.MaxDelay = override.MaxDelay
	}
	if override.BatchLimit > 0 {
		out.BatchLimit = override.BatchLimit
	}
	if override.BatchCooldown > 0 {
		out.BatchCooldown = override.BatchCooldown
	}
	if override.ScrollMin > 0 {
		out.ScrollMin = override.ScrollMin
	}
	if override.ScrollMax > 0 {
		out.ScrollMax = override.ScrollMax
	}
	if override.KeyDelayMin > 0 {
		out.KeyDelayMin = override.KeyDelayMin
	}
	if override.KeyDelayMax > 0 {
		out.KeyDelayMax = override.KeyDelayMax
	}
	if override.ActionsPerHour > 0 {
		out.ActionsPerHour = override.ActionsPerHour
	}
	return out
}

// Validate checks the anti-detection bounds.
func (a *AntiDetectionConfig) Validate() error {
	if a.MinDelay < 0 || a.MaxDelay < a.MinDelay {
		return fmt.Errorf("anti_detection.min_delay must be non-negative and not exceed max_delay")
	}
	if a.BatchLimit <= 0 {
		return fmt.Errorf("anti_detection.batch_limit must be a positive integer")
	}
	if a.BatchCooldown <= 0 {
		return fmt.Errorf("anti_detection.batch_cooldown must be a positive duration")
	}
	if a.ScrollMin <= 0 || a.ScrollMax < a.ScrollMin {
		return fmt.Errorf("anti_detection.scroll_min must be positive and not exceed scroll_max")
	}
	if a.KeyDelayMin < 0 || a.KeyDelayMax < a.KeyDelayMin {
		return fmt.Errorf("anti_detection.key_delay_min must be non-negative and not exceed key_delay_max")
	}
	if a.ActionsPerHour <= 0 {
		return fmt.Errorf("anti_detection.actions_per_hour must be a positive integer")
	}
	return nil
}

// PublishConfig tunes the publish state machine.
type PublishConfig struct {
	SettleTime         time.Duration `mapstructure:"settle_time" yaml:"settle_time"`
	ReviewPollInterval time.Duration `mapstructure:"review_poll_interval" yaml:"review_poll_interval"`
	ReviewTimeout      time.Duration `mapstructure:"review_timeout" yaml:"review_timeout"`
	UploadTimeout      time.Duration `mapstructure:"upload_timeout" yaml:"upload_timeout"`
	// AssumeSuccessOnVerificationFailure reports a post as published when the submit
	// action completed but the permalink could not be read back.
	AssumeSuccessOnVerificationFailure bool   `mapstructure:"assume_success_on_verification_failure" yaml:"assume_success_on_verification_failure"`
	ArtifactDir                        string `mapstructure:"artifact_dir" yaml:"artifact_dir"`
}

// EngagementConfig tunes the engagement executor.
type EngagementConfig struct {
	SettleTime time.Duration `mapstructure:"settle_time" yaml:"settle_time"`
}

// MediaConfig locates uploaded media assets.
type MediaConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// LLMConfig configures the profile extraction model.
type LLMConfig struct {
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	Model         string        `mapstructure:"model" yaml:"model"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature   float32       `mapstructure:"temperature" yaml:"temperature"`
	MinConfidence float64       `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "socialpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Browser --
	v.SetDefault("browser.profile_root", "~/.socialpilot/profiles")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.launch_timeout", "45s")
	v.SetDefault("browser.navigation_timeout", "60s")

	// -- Session --
	v.SetDefault("session.backend", "file")
	v.SetDefault("session.dir", "~/.socialpilot/sessions")
	v.SetDefault("session.key", "")
	v.SetDefault("session.setup_timeout", "5m")

	// -- Anti-detection --
	v.SetDefault("anti_detection.min_delay", "3s")
	v.SetDefault("anti_detection.max_delay", "8s")
	v.SetDefault("anti_detection.batch_limit", 25)
	v.SetDefault("anti_detection.batch_cooldown", "15m")
	v.SetDefault("anti_detection.scroll_min", 300)
	v.SetDefault("anti_detection.scroll_max", 1200)
	v.SetDefault("anti_detection.key_delay_min", "50ms")
	v.SetDefault("anti_detection.key_delay_max", "180ms")
	v.SetDefault("anti_detection.actions_per_hour", 30)

	// -- Publish --
	v.SetDefault("publish.settle_time", "3s")
	v.SetDefault("publish.review_poll_interval", "2s")
	v.SetDefault("publish.review_timeout", "5m")
	v.SetDefault("publish.upload_timeout", "60s")
	v.SetDefault("publish.assume_success_on_verification_failure", true)
	v.SetDefault("publish.artifact_dir", "~/.socialpilot/artifacts")

	// -- Engagement --
	v.SetDefault("engagement.settle_time", "2s")

	// -- Media --
	v.SetDefault("media.root", "~/.socialpilot/media")

	// -- LLM --
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.min_confidence", 0.6)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("session.key", "SOCIALPILOT_SESSION_KEY")
	_ = v.BindEnv("llm.api_key", "SOCIALPILOT_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "SOCIALPILOT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.ProfileRoot == "" {
		return fmt.Errorf("browser.profile_root is a required configuration field")
	}
	switch c.SessionCfg.Backend {
	case "file":
		if c.SessionCfg.Dir == "" {
			return fmt.Errorf("session.dir is required when session.backend is file")
		}
	case "postgres":
		if c.DatabaseCfg.URL == "" {
			return fmt.Errorf("database.url is required when session.backend is postgres")
		}
	default:
		return fmt.Errorf("session.backend must be one of file or postgres, got %q", c.SessionCfg.Backend)
	}
	if err := c.AntiDetectionCfg.Validate(); err != nil {
		return fmt.Errorf("anti_detection configuration invalid: %w", err)
	}
	if err := c.PublishCfg.Validate(); err != nil {
		return fmt.Errorf("publish configuration invalid: %w", err)
	}
	if c.LLMCfg.MinConfidence < 0.0 || c.LLMCfg.MinConfidence > 1.0 {
		return fmt.Errorf("llm.min_confidence must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the publish timings.
func (p *PublishConfig) Validate() error {
	if p.ReviewPollInterval <= 0 {
		return fmt.Errorf("review_poll_interval must be a positive duration")
	}
	if p.ReviewTimeout < p.ReviewPollInterval {
		return fmt.Errorf("review_timeout must not be shorter than review_poll_interval")
	}
	if p.UploadTimeout <= 0 {
		return fmt.Errorf("upload_timeout must be a positive duration")
	}
	return nil
}
