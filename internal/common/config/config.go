// Package config provides configuration management for agentboard.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for agentboard.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Worktree WorktreeConfig `mapstructure:"worktree"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds ticket store configuration. An empty path selects
// the in-memory repository.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// NATSConfig holds event bus configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// AgentConfig holds agent CLI configuration.
type AgentConfig struct {
	// Binary is the agent CLI executable invoked as a subprocess.
	Binary string `mapstructure:"binary"`
	// Args are the fixed arguments prepended to every invocation.
	Args []string `mapstructure:"args"`
	// Model is passed through to the agent when non-empty.
	Model string `mapstructure:"model"`
	// ProbeTimeout bounds the availability check, in seconds.
	ProbeTimeout int `mapstructure:"probeTimeout"`
}

// RunnerConfig holds execution instance configuration.
type RunnerConfig struct {
	// InstancesRoot is the directory under which instance directories are created.
	InstancesRoot string `mapstructure:"instancesRoot"`
	// TicketLogMaxBytes is the ceiling on the ticket record's log text copy.
	TicketLogMaxBytes int `mapstructure:"ticketLogMaxBytes"`
	// TicketLogTrimBytes is the trailing window kept after truncation.
	TicketLogTrimBytes int `mapstructure:"ticketLogTrimBytes"`
}

// WorktreeConfig holds Git worktree configuration for isolated agent checkouts.
type WorktreeConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	BranchPrefix string `mapstructure:"branchPrefix"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ProbeTimeoutDuration returns the availability probe timeout as a time.Duration.
func (a *AgentConfig) ProbeTimeoutDuration() time.Duration {
	return time.Duration(a.ProbeTimeout) * time.Second
}

// ExpandedInstancesRoot expands a leading ~ in the instances root.
func (r *RunnerConfig) ExpandedInstancesRoot() (string, error) {
	path := r.InstancesRoot
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path, nil
}

// detectDefaultLogFormat returns "json" for production environments and
// "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTBOARD_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults - empty path means in-memory ticket store
	v.SetDefault("database.path", "")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentboard")
	v.SetDefault("nats.maxReconnects", 10)

	// Agent CLI defaults
	v.SetDefault("agent.binary", "claude")
	v.SetDefault("agent.args", []string{"-p", "--output-format", "stream-json", "--verbose"})
	v.SetDefault("agent.model", "")
	v.SetDefault("agent.probeTimeout", 5)

	// Runner defaults
	v.SetDefault("runner.instancesRoot", "~/.agentboard/instances")
	v.SetDefault("runner.ticketLogMaxBytes", 50*1024)
	v.SetDefault("runner.ticketLogTrimBytes", 40*1024)

	// Worktree defaults
	v.SetDefault("worktree.enabled", true)
	v.SetDefault("worktree.branchPrefix", "agentboard/")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTBOARD_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/agentboard/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentboard/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Agent.Binary == "" {
		errs = append(errs, "agent.binary is required")
	}
	if cfg.Agent.ProbeTimeout <= 0 {
		errs = append(errs, "agent.probeTimeout must be positive")
	}

	if cfg.Runner.InstancesRoot == "" {
		errs = append(errs, "runner.instancesRoot is required")
	}
	if cfg.Runner.TicketLogMaxBytes <= 0 {
		errs = append(errs, "runner.ticketLogMaxBytes must be positive")
	}
	if cfg.Runner.TicketLogTrimBytes <= 0 || cfg.Runner.TicketLogTrimBytes > cfg.Runner.TicketLogMaxBytes {
		errs = append(errs, "runner.ticketLogTrimBytes must be positive and not exceed runner.ticketLogMaxBytes")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
