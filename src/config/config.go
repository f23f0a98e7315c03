package config

import (
	"fmt"
	"os"

	"trading-core/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills optional fields so a minimal YAML file still boots.
func (c *Config) applyDefaults() {
	if c.Stream.BackoffMultiplier == 0 {
		c.Stream.BackoffMultiplier = 2.0
	}
	if c.Stream.BaseDelayMs == 0 {
		c.Stream.BaseDelayMs = 500
	}
	if c.Stream.MaxDelayMs == 0 {
		c.Stream.MaxDelayMs = 30000
	}
	if c.Stream.StableAfterSec == 0 {
		c.Stream.StableAfterSec = 30
	}
	if c.Stream.SessionTTLSec == 0 {
		c.Stream.SessionTTLSec = 300
	}
	if c.Stream.RenewMarginSec == 0 {
		c.Stream.RenewMarginSec = 60
	}
	if c.Stream.BreakerThreshold == 0 {
		c.Stream.BreakerThreshold = 5
	}
	if c.Stream.BreakerCooldownSec == 0 {
		c.Stream.BreakerCooldownSec = 60
	}
	if c.Stream.ConnectTimeoutSec == 0 {
		c.Stream.ConnectTimeoutSec = 10
	}
	if c.Execution.SubmitTimeoutSec == 0 {
		c.Execution.SubmitTimeoutSec = 10
	}
	if c.Execution.RetryBaseDelayMs == 0 {
		c.Execution.RetryBaseDelayMs = 250
	}
	if c.Execution.RetryMaxDelayMs == 0 {
		c.Execution.RetryMaxDelayMs = 5000
	}
	if c.Execution.ResultTTLHours == 0 {
		c.Execution.ResultTTLHours = 24
	}
	if c.Execution.BreakerThreshold == 0 {
		c.Execution.BreakerThreshold = 5
	}
	if c.Execution.BreakerCooldownSec == 0 {
		c.Execution.BreakerCooldownSec = 30
	}
	if c.Compliance.CalendarMIC == "" {
		c.Compliance.CalendarMIC = "xnys"
	}
	if c.Compliance.AccountType == "" {
		c.Compliance.AccountType = "margin"
	}
	if c.Compliance.WindowDays == 0 {
		c.Compliance.WindowDays = 5
	}
	if c.Compliance.FlagThreshold == 0 {
		c.Compliance.FlagThreshold = 4
	}
	if c.FanOut.ReplayBufferSize == 0 {
		c.FanOut.ReplayBufferSize = 4096
	}
	if c.FanOut.SubscriberQueueSize == 0 {
		c.FanOut.SubscriberQueueSize = 256
	}
	if c.FanOut.HeartbeatIntervalSec == 0 {
		c.FanOut.HeartbeatIntervalSec = 15
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Stream configuration
	if c.Stream.Endpoint == "" {
		return fmt.Errorf("stream endpoint cannot be empty")
	}
	if c.Stream.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1")
	}
	if c.Stream.RenewMarginSec >= c.Stream.SessionTTLSec {
		return fmt.Errorf("renew margin (%ds) must be below session ttl (%ds)",
			c.Stream.RenewMarginSec, c.Stream.SessionTTLSec)
	}

	// Validate Execution configuration
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Execution.ResultTTLHours <= 0 {
		return fmt.Errorf("result ttl must be greater than 0")
	}

	// Validate Compliance configuration
	if c.Compliance.AccountType != "margin" && c.Compliance.AccountType != "cash" {
		return fmt.Errorf("unknown account type: %s", c.Compliance.AccountType)
	}
	if c.Compliance.WindowDays <= 0 {
		return fmt.Errorf("compliance window days must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
