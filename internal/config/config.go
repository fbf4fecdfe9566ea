// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Device() DeviceConfig
	Planner() PlannerConfig
	Agent() AgentConfig
	Run() RunConfig
	SetRunConfig(rc RunConfig)

	// Agent Setters
	SetAgentMaxSteps(int)
	SetAgentPause(time.Duration)

	// Device Setters
	SetDeviceADBPath(string)

	// Planner Setters
	SetPlannerModel(string)
}

// Config holds the entire application configuration. Access normally goes
// through the Interface's getter methods; the fields stay exported so viper
// can unmarshal into them.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	DeviceCfg  DeviceConfig  `mapstructure:"device" yaml:"device"`
	PlannerCfg PlannerConfig `mapstructure:"planner" yaml:"planner"`
	AgentCfg   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	// RunCfg gets its marching orders from CLI flags, not the config file.
	RunCfg RunConfig `mapstructure:"-" yaml:"-"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Device() DeviceConfig   { return c.DeviceCfg }
func (c *Config) Planner() PlannerConfig { return c.PlannerCfg }
func (c *Config) Agent() AgentConfig     { return c.AgentCfg }
func (c *Config) Run() RunConfig         { return c.RunCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetRunConfig(rc RunConfig) { c.RunCfg = rc }

func (c *Config) SetAgentMaxSteps(n int)        { c.AgentCfg.MaxSteps = n }
func (c *Config) SetAgentPause(d time.Duration) { c.AgentCfg.Pause = d }
func (c *Config) SetDeviceADBPath(p string)     { c.DeviceCfg.ADBPath = p }
func (c *Config) SetPlannerModel(m string)      { c.PlannerCfg.Model = m }

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

// DeviceConfig holds settings for the adb transport.
type DeviceConfig struct {
	ADBPath     string        `mapstructure:"adb_path" yaml:"adb_path"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// PlannerProvider defines the supported planner backends.
type PlannerProvider string

const (
	ProviderGemini PlannerProvider = "gemini"
)

// PlannerConfig defines the configuration for the vision planner model.
type PlannerConfig struct {
	Provider          PlannerProvider `mapstructure:"provider" yaml:"provider"`
	Model             string          `mapstructure:"model" yaml:"model"`
	APIKey            string          `mapstructure:"api_key" yaml:"-"`
	APITimeout        time.Duration   `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32         `mapstructure:"temperature" yaml:"temperature"`
	TopP              float32         `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens         int32           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute float64         `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxRetryElapsed   time.Duration   `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
}

// TrackerConfig holds the repetition thresholds for the action tracker.
type TrackerConfig struct {
	SameTapWarn int `mapstructure:"same_tap_warn" yaml:"same_tap_warn"`
	SameTapVeto int `mapstructure:"same_tap_veto" yaml:"same_tap_veto"`
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// StallConfig tunes the stalled-screen detector. Scales multiply the base
// threshold for contexts where an unchanged screen is expected.
type StallConfig struct {
	MaxRepeatedStates int     `mapstructure:"max_repeated_states" yaml:"max_repeated_states"`
	BrowserScale      float64 `mapstructure:"browser_scale" yaml:"browser_scale"`
	LauncherScale     float64 `mapstructure:"launcher_scale" yaml:"launcher_scale"`
}

// ScreenshotConfig controls on-disk screenshot retention.
type ScreenshotConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	Retention string `mapstructure:"retention" yaml:"retention"`
}

// AgentConfig holds settings for the episode loop controller.
type AgentConfig struct {
	MaxSteps               int              `mapstructure:"max_steps" yaml:"max_steps"`
	StepTimeout            time.Duration    `mapstructure:"step_timeout" yaml:"step_timeout"`
	Pause                  time.Duration    `mapstructure:"pause" yaml:"pause"`
	MaxConsecutiveSameType int              `mapstructure:"max_consecutive_same_type" yaml:"max_consecutive_same_type"`
	Tracker                TrackerConfig    `mapstructure:"tracker" yaml:"tracker"`
	Stall                  StallConfig      `mapstructure:"stall" yaml:"stall"`
	Screenshots            ScreenshotConfig `mapstructure:"screenshots" yaml:"screenshots"`
	KeyboardCheck          bool             `mapstructure:"keyboard_check" yaml:"keyboard_check"`
	// StepConfirm gates each step on an operator keypress. Interactive runs
	// only; never set from the config file in practice.
	StepConfirm bool `mapstructure:"step_confirm" yaml:"step_confirm"`
}

// RunConfig holds settings populated from CLI flags for a specific episode.
type RunConfig struct {
	Goal         string
	Context      string
	Instructions []string
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
	v.SetDefault("logger.service_name", "droidpilot")
	v.SetDefault("logger.log_file", "droidpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Device --
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.call_timeout", "20s")
	v.SetDefault("device.settle_delay", "1s")

	// -- Planner --
	v.SetDefault("planner.provider", "gemini")
	v.SetDefault("planner.model", "gemini-2.5-flash")
	v.SetDefault("planner.api_timeout", "90s")
	v.SetDefault("planner.temperature", 0.2)
	v.SetDefault("planner.top_p", 0.95)
	v.SetDefault("planner.max_tokens", 2048)
	v.SetDefault("planner.requests_per_minute", 15.0)
	v.SetDefault("planner.max_retry_elapsed", "2m")

	// -- Agent --
	v.SetDefault("agent.max_steps", 30)
	v.SetDefault("agent.step_timeout", "3m")
	v.SetDefault("agent.pause", "2s")
	v.SetDefault("agent.max_consecutive_same_type", 5)
	v.SetDefault("agent.tracker.same_tap_warn", 5)
	v.SetDefault("agent.tracker.same_tap_veto", 8)
	v.SetDefault("agent.tracker.max_attempts", 10)
	v.SetDefault("agent.stall.max_repeated_states", 3)
	v.SetDefault("agent.stall.browser_scale", 3.0)
	v.SetDefault("agent.stall.launcher_scale", 2.0)
	v.SetDefault("agent.screenshots.dir", "screenshots")
	v.SetDefault("agent.screenshots.retention", "discard")
	v.SetDefault("agent.keyboard_check", true)
	v.SetDefault("agent.step_confirm", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("planner.api_key", "DROIDPILOT_API_KEY", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.PlannerCfg.APIKey == "" {
		if key := os.Getenv("DROIDPILOT_API_KEY"); key != "" {
			cfg.PlannerCfg.APIKey = key
		} else {
			cfg.PlannerCfg.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// Invalid configuration fails the run before any device call is made.
func (c *Config) Validate() error {
	if c.DeviceCfg.ADBPath == "" {
		return fmt.Errorf("device.adb_path is a required configuration field")
	}
	if c.DeviceCfg.CallTimeout <= 0 {
		return fmt.Errorf("device.call_timeout must be a positive duration")
	}
	if err := c.PlannerCfg.Validate(); err != nil {
		return fmt.Errorf("planner configuration invalid: %w", err)
	}
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the planner settings.
func (p *PlannerConfig) Validate() error {
	if p.Provider != ProviderGemini {
		return fmt.Errorf("unsupported planner provider %q", p.Provider)
	}
	if p.Model == "" {
		return fmt.Errorf("model is required")
	}
	if p.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be a positive duration")
	}
	if p.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests_per_minute must be greater than 0")
	}
	return nil
}

// Validate checks the agent loop settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be greater than 0")
	}
	if a.MaxConsecutiveSameType <= 0 {
		return fmt.Errorf("max_consecutive_same_type must be greater than 0")
	}
	if a.Tracker.SameTapWarn <= 0 || a.Tracker.SameTapVeto <= a.Tracker.SameTapWarn {
		return fmt.Errorf("tracker.same_tap_veto must be greater than tracker.same_tap_warn, both positive")
	}
	if a.Stall.MaxRepeatedStates <= 0 {
		return fmt.Errorf("stall.max_repeated_states must be greater than 0")
	}
	if a.Stall.BrowserScale < 1 || a.Stall.LauncherScale < 1 {
		return fmt.Errorf("stall scales must be at least 1")
	}
	switch a.Screenshots.Retention {
	case "keep", "discard":
	default:
		return fmt.Errorf("screenshots.retention must be \"keep\" or \"discard\"")
	}
	return nil
}
