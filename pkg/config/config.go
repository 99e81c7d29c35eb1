// Package config provides configuration management and settings for the
// coordination runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentfabric/coordinator/pkg/logger"
)

// Log level constants
const (
	logLevelDebug = "debug"
)

// ValidationLevel represents the level of configuration validation
type ValidationLevel int

const (
	ValidationLevelBasic ValidationLevel = iota
	ValidationLevelStrict
	ValidationLevelComplete
)

// ConfigValidator validates configuration
type ConfigValidator struct {
	level ValidationLevel
}

// ConfigValidationResult contains validation results
type ConfigValidationResult struct {
	Errors   []error
	Warnings []string
}

// HasErrors returns true if there are validation errors
func (cvr *ConfigValidationResult) HasErrors() bool {
	return len(cvr.Errors) > 0
}

// NewConfigValidator creates a new config validator
func NewConfigValidator(level ValidationLevel) *ConfigValidator {
	return &ConfigValidator{level: level}
}

// ValidateConfig validates a configuration
func (cv *ConfigValidator) ValidateConfig(config *Config) *ConfigValidationResult {
	result := &ConfigValidationResult{
		Errors:   []error{},
		Warnings: []string{},
	}

	if err := cv.validateBasicConfig(config); err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	cv.validateVersion(config, result)
	cv.validateFabricConfig(config, result)
	cv.validateConflictConfig(config, result)
	cv.validateStrictLevel(config, result)
	cv.validateCompleteLevel(config, result)

	return result
}

// validateBasicConfig performs basic null checks
func (cv *ConfigValidator) validateBasicConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	return nil
}

// validateVersion validates the configuration version
func (cv *ConfigValidator) validateVersion(config *Config, result *ConfigValidationResult) {
	if config.Version == "" {
		result.Errors = append(result.Errors, fmt.Errorf("version cannot be empty"))
		return
	}

	validVersions := map[string]bool{"1.0": true, "2.0": true}
	if !validVersions[config.Version] {
		result.Errors = append(result.Errors, fmt.Errorf("invalid version format: %s", config.Version))
	}
}

// validateFabricConfig validates the coordination fabric's sizing limits
func (cv *ConfigValidator) validateFabricConfig(config *Config, result *ConfigValidationResult) {
	if config.Fabric.MaxConcurrentAgents < 1 {
		result.Errors = append(result.Errors, fmt.Errorf("fabric.max_concurrent_agents must be at least 1"))
	}
	if config.Fabric.MaxBlockTime < time.Second {
		result.Errors = append(result.Errors, fmt.Errorf("fabric.max_block_time must be at least 1 second"))
	}
	if config.Fabric.DefaultLockTTL < time.Second {
		result.Errors = append(result.Errors, fmt.Errorf("fabric.default_lock_ttl must be at least 1 second"))
	}
	if config.Fabric.MaxSyncQueueSize < 1 {
		result.Errors = append(result.Errors, fmt.Errorf("fabric.max_sync_queue_size must be at least 1"))
	}
	if config.Fabric.MaxRetryAttempts < 0 {
		result.Errors = append(result.Errors, fmt.Errorf("fabric.max_retry_attempts cannot be negative"))
	}
	if config.Fabric.MaxSyncHistorySize < 0 {
		result.Errors = append(result.Errors, fmt.Errorf("fabric.max_sync_history_size cannot be negative"))
	}
}

// validateConflictConfig validates the conflict resolver's tunables
func (cv *ConfigValidator) validateConflictConfig(config *Config, result *ConfigValidationResult) {
	if config.Conflict.CompatibilityThreshold < 0 || config.Conflict.CompatibilityThreshold > 1 {
		result.Errors = append(result.Errors, fmt.Errorf("conflict.compatibility_threshold must be between 0 and 1"))
	}
	if config.Conflict.PrimaryStrategy == "" {
		result.Errors = append(result.Errors, fmt.Errorf("conflict.primary_strategy cannot be empty"))
	}
}

// validateUsername validates an external collaborator identity string
func (cv *ConfigValidator) validateUsername(username string) error {
	if username == "" || len(username) > 39 {
		return fmt.Errorf("invalid identity: %s", username)
	}

	invalidChars := "!@#$%^&*()=+[]{}|\\:;\"'<>?,"
	for _, char := range invalidChars {
		if contains(username, string(char)) {
			return fmt.Errorf("invalid identity: %s", username)
		}
	}

	return nil
}

// validateStrictLevel performs strict-level validation
func (cv *ConfigValidator) validateStrictLevel(config *Config, result *ConfigValidationResult) {
	if cv.level < ValidationLevelStrict {
		return
	}

	if config.Executor.DefaultTimeout < time.Second {
		result.Warnings = append(result.Warnings, "executor default timeout under one second")
	}
}

// validateCompleteLevel performs complete-level validation
func (cv *ConfigValidator) validateCompleteLevel(config *Config, result *ConfigValidationResult) {
	if cv.level < ValidationLevelComplete {
		return
	}

	if config.Workflow.MaxConcurrentWorkflows > 100 {
		result.Warnings = append(result.Warnings, "workflow.max_concurrent_workflows is unusually high")
	}
}

// Helper function to check if string contains substring
func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// Config represents the application configuration
type Config struct {
	Version string `yaml:"version"`

	Fabric   FabricConfig   `yaml:"fabric"`
	Conflict ConflictConfig `yaml:"conflict"`
	Executor ExecutorConfig `yaml:"executor"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// FabricConfig holds Agent Coordination Fabric sizing limits (C2-C4).
type FabricConfig struct {
	MaxConcurrentAgents int           `yaml:"max_concurrent_agents"`
	MaxBlockTime        time.Duration `yaml:"max_block_time"`
	DefaultLockTTL      time.Duration `yaml:"default_lock_ttl"`
	MaxSyncQueueSize    int           `yaml:"max_sync_queue_size"`
	MaxRetryAttempts    int           `yaml:"max_retry_attempts"`
	MaxSyncHistorySize  int           `yaml:"max_sync_history_size"`
}

// ConflictConfig holds Conflict Resolution Engine tunables (C6).
type ConflictConfig struct {
	CompatibilityThreshold float64  `yaml:"compatibility_threshold"`
	PreferStable           bool     `yaml:"prefer_stable"`
	StrictPinning          bool     `yaml:"strict_pinning"`
	PrimaryStrategy        string   `yaml:"primary_strategy"`
	FallbackStrategies     []string `yaml:"fallback_strategies"`
	TrackHistory           bool     `yaml:"track_history"`
	MaxAttempts            int      `yaml:"max_attempts"`
}

// ExecutorConfig holds Agent Executor policy defaults (C8).
type ExecutorConfig struct {
	DefaultTimeout      time.Duration `yaml:"default_timeout"`
	MaxRetryAttempts    int           `yaml:"max_retry_attempts"`
	MaxConcurrentPerJob int           `yaml:"max_concurrent_per_job"`
	CircuitBreakerTrips uint32        `yaml:"circuit_breaker_trips"`
}

// WorkflowConfig holds Workflow Engine limits (C9).
type WorkflowConfig struct {
	MaxConcurrentWorkflows int           `yaml:"max_concurrent_workflows"`
	EventBufferSize        int           `yaml:"event_buffer_size"`
	HistoryRetention       time.Duration `yaml:"history_retention"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Format     string `yaml:"format"`
	Rotation   bool   `yaml:"rotation"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Use current directory as fallback if home directory cannot be determined
		homeDir = "."
	}

	return &Config{
		Version: "1.0",

		Fabric: FabricConfig{
			MaxConcurrentAgents: 32,
			MaxBlockTime:        30 * time.Second,
			DefaultLockTTL:      5 * time.Minute,
			MaxSyncQueueSize:    1000,
			MaxRetryAttempts:    3,
			MaxSyncHistorySize:  500,
		},

		Conflict: ConflictConfig{
			CompatibilityThreshold: 0.7,
			PreferStable:           true,
			StrictPinning:          false,
			PrimaryStrategy:        "latest_compatible",
			FallbackStrategies:     []string{"conservative", "manual_resolution"},
			TrackHistory:           true,
			MaxAttempts:            3,
		},

		Executor: ExecutorConfig{
			DefaultTimeout:      2 * time.Minute,
			MaxRetryAttempts:    3,
			MaxConcurrentPerJob: 8,
			CircuitBreakerTrips: 5,
		},

		Workflow: WorkflowConfig{
			MaxConcurrentWorkflows: 16,
			EventBufferSize:        256,
			HistoryRetention:       168 * time.Hour, // 7 days
		},

		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(homeDir, ".fabricd", "logs", "fabricd.log"),
			Format:     "text",
			Rotation:   true,
			MaxSize:    100, // MB
			MaxAge:     30,  // days
			MaxBackups: 5,
		},
	}
}

// GetConfigPaths returns the list of configuration file paths to check
func GetConfigPaths() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Use current directory as fallback if home directory cannot be determined
		homeDir = "."
	}

	paths := []string{
		".fabricd.yaml",
		".fabricd.yml",
		filepath.Join(homeDir, ".fabricd.yaml"),
		filepath.Join(homeDir, ".fabricd.yml"),
		filepath.Join(homeDir, ".config", "fabricd", "config.yaml"),
		filepath.Join(homeDir, ".config", "fabricd", "config.yml"),
	}

	// Add environment variable override
	if envPath := os.Getenv("FABRICD_CONFIG"); envPath != "" {
		paths = append([]string{envPath}, paths...)
	}

	return paths
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Fabric.MaxConcurrentAgents < 1 {
		return fmt.Errorf("fabric.max_concurrent_agents must be at least 1")
	}
	if c.Fabric.DefaultLockTTL < time.Second {
		return fmt.Errorf("fabric.default_lock_ttl must be at least 1 second")
	}

	if c.Conflict.CompatibilityThreshold < 0 || c.Conflict.CompatibilityThreshold > 1 {
		return fmt.Errorf("conflict.compatibility_threshold must be between 0 and 1")
	}

	if c.Executor.MaxConcurrentPerJob < 1 {
		return fmt.Errorf("executor.max_concurrent_per_job must be at least 1")
	}

	if c.Workflow.MaxConcurrentWorkflows < 1 {
		return fmt.Errorf("workflow.max_concurrent_workflows must be at least 1")
	}
	if c.Workflow.EventBufferSize < 1 {
		return fmt.Errorf("workflow.event_buffer_size must be at least 1")
	}

	validLevels := map[string]bool{
		logLevelDebug: true,
		"info":        true,
		"warn":        true,
		"error":       true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}

// ApplyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) ApplyEnvironmentOverrides() {
	if v := os.Getenv("FABRICD_MAX_CONCURRENT_AGENTS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Fabric.MaxConcurrentAgents = n
		}
	}

	// Logging overrides
	if level := os.Getenv("FABRICD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if file := os.Getenv("FABRICD_LOG_FILE"); file != "" {
		c.Logging.File = file
	}

	// Debug mode override
	if os.Getenv("FABRICD_DEBUG") == "true" {
		c.Logging.Level = logLevelDebug
	}
}

// ToLoggerConfig converts the logging configuration to logger.Config
func (c *Config) ToLoggerConfig() logger.Config {
	var level logger.Level
	switch c.Logging.Level {
	case logLevelDebug:
		level = logger.LevelDebug
	case "info":
		level = logger.LevelInfo
	case "warn":
		level = logger.LevelWarn
	case "error":
		level = logger.LevelError
	default:
		level = logger.LevelInfo
	}

	return logger.Config{
		Level:     level,
		LogFile:   c.Logging.File,
		Debug:     c.Logging.Level == logLevelDebug,
		Timestamp: true,
		Prefix:    "fabricd",
	}
}
