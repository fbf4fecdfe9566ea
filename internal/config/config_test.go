// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "adb", cfg.Device().ADBPath)
	assert.Equal(t, 20*time.Second, cfg.Device().CallTimeout)
	assert.Equal(t, ProviderGemini, cfg.Planner().Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Planner().Model)
	assert.Equal(t, 30, cfg.Agent().MaxSteps)
	assert.Equal(t, 5, cfg.Agent().MaxConsecutiveSameType)
	assert.Equal(t, 5, cfg.Agent().Tracker.SameTapWarn)
	assert.Equal(t, 8, cfg.Agent().Tracker.SameTapVeto)
	assert.Equal(t, 10, cfg.Agent().Tracker.MaxAttempts)
	assert.Equal(t, 3.0, cfg.Agent().Stall.BrowserScale)
	assert.Equal(t, "discard", cfg.Agent().Screenshots.Retention)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		err := cfg.Validate()
		assert.NoError(t, err, "A valid config should not produce a validation error")

		cfgNoADB := *cfg
		cfgNoADB.DeviceCfg.ADBPath = ""
		err = cfgNoADB.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "device.adb_path is a required configuration field")

		cfgBadTimeout := *cfg
		cfgBadTimeout.DeviceCfg.CallTimeout = 0
		err = cfgBadTimeout.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "device.call_timeout must be a positive duration")
	})

	t.Run("Planner Validation", func(t *testing.T) {
		valid := PlannerConfig{
			Provider:          ProviderGemini,
			Model:             "gemini-2.5-flash",
			APITimeout:        90 * time.Second,
			RequestsPerMinute: 15,
		}
		assert.NoError(t, valid.Validate())

		badProvider := valid
		badProvider.Provider = "openai"
		err := badProvider.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported planner provider")

		noModel := valid
		noModel.Model = ""
		err = noModel.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "model is required")

		badRate := valid
		badRate.RequestsPerMinute = 0
		err = badRate.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "requests_per_minute must be greater than 0")
	})

	t.Run("Agent Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Agent()
		assert.NoError(t, valid.Validate())

		badSteps := valid
		badSteps.MaxSteps = 0
		err := badSteps.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max_steps must be greater than 0")

		// The veto threshold must sit strictly above the warn threshold.
		badThresholds := valid
		badThresholds.Tracker.SameTapVeto = valid.Tracker.SameTapWarn
		err = badThresholds.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "same_tap_veto must be greater than")

		badScale := valid
		badScale.Stall.LauncherScale = 0.5
		err = badScale.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "stall scales must be at least 1")

		badRetention := valid
		badRetention.Screenshots.Retention = "archive"
		err = badRetention.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "screenshots.retention")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
device:
  adb_path: /opt/android/platform-tools/adb
agent:
  max_steps: 12
planner:
  model: gemini-2.5-pro
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		err := v.ReadConfig(bytes.NewBuffer(yamlBytes))
		require.NoError(t, err)

		var cfg Config
		err = v.Unmarshal(&cfg)
		require.NoError(t, err)

		assert.Equal(t, "/opt/android/platform-tools/adb", cfg.Device().ADBPath)
		assert.Equal(t, 12, cfg.Agent().MaxSteps)
		assert.Equal(t, "gemini-2.5-pro", cfg.Planner().Model)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("agent.max_steps", 0) // Intentionally invalid

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "max_steps must be greater than 0")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		testKey := "AIza-env-var-key-456"
		t.Setenv("DROIDPILOT_API_KEY", testKey)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, testKey, cfg.Planner().APIKey)
	})

	t.Run("Gemini Key Fallback", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		t.Setenv("DROIDPILOT_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "AIza-gemini-key")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "AIza-gemini-key", cfg.Planner().APIKey)
	})
}

// -- Struct and Mapping Tests --

func TestConfigStructureMapping(t *testing.T) {
	yamlInput := `
logger:
  level: debug
  log_file: /var/log/droidpilot.log
device:
  settle_delay: 500ms
agent:
  stall:
    max_repeated_states: 4
    browser_scale: 2.5
  screenshots:
    dir: /tmp/shots
    retention: keep
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	err := v.ReadConfig(bytes.NewBufferString(yamlInput))
	require.NoError(t, err)

	var cfg Config
	err = v.Unmarshal(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, "/var/log/droidpilot.log", cfg.Logger().LogFile)
	assert.Equal(t, 500*time.Millisecond, cfg.Device().SettleDelay)
	assert.Equal(t, 4, cfg.Agent().Stall.MaxRepeatedStates)
	assert.Equal(t, 2.5, cfg.Agent().Stall.BrowserScale)
	assert.Equal(t, "keep", cfg.Agent().Screenshots.Retention)
	assert.Equal(t, "/tmp/shots", cfg.Agent().Screenshots.Dir)
}
