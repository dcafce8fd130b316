package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingConfig is returned when a required setting is absent or invalid
var ErrMissingConfig = errors.New("missing required configuration")

// ConfigurationError names the offending setting
type ConfigurationError struct {
	Key    string
	Reason string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}

// Is lets errors.Is match ErrMissingConfig
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrMissingConfig
}

// Config represents the provisioner configuration
type Config struct {
	DeploymentName string         `mapstructure:"deployment_name"`
	BootstrapUser  string         `mapstructure:"bootstrap_user"`
	Graph          GraphConfig    `mapstructure:"graph"`
	Database       DatabaseConfig `mapstructure:"database"`
	Secrets        SecretsConfig  `mapstructure:"secrets"`
	Log            LogConfig      `mapstructure:"log"`
}

// GraphConfig represents graph store configuration
type GraphConfig struct {
	Addrs       []string      `mapstructure:"addrs"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	Concurrency int           `mapstructure:"concurrency"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// SecretsConfig selects and configures the secret store
type SecretsConfig struct {
	Backend       string `mapstructure:"backend"`
	EnvPrefix     string `mapstructure:"env_prefix"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Secret store backends
const (
	BackendEnv   = "env"
	BackendRedis = "redis"
)

// Load loads the configuration from provisioner.yml or provisioner.yaml in
// the working directory, or from configFile when it is set. Environment
// variables override the file: DEPLOYMENT_NAME, BOOTSTRAP_USER_NAME,
// DATABASE_URL and PROVISIONER_<SECTION>_<KEY>.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("deployment_name", "")
	v.SetDefault("bootstrap_user", "")
	v.SetDefault("graph.addrs", []string{"localhost:9080"})
	v.SetDefault("graph.dial_timeout", 10*time.Second)
	v.SetDefault("graph.max_retries", 3)
	v.SetDefault("graph.base_backoff", 100*time.Millisecond)
	v.SetDefault("graph.concurrency", 1)
	v.SetDefault("database.url", "sqlite://provisioner.db")
	v.SetDefault("secrets.backend", BackendEnv)
	v.SetDefault("secrets.env_prefix", "")
	v.SetDefault("secrets.redis_addr", "localhost:6379")
	v.SetDefault("secrets.redis_password", "")
	v.SetDefault("secrets.redis_db", 0)
	v.SetDefault("secrets.key_prefix", "provisioner:secret:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("provisioner")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.SetEnvPrefix("PROVISIONER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"deployment_name": {"PROVISIONER_DEPLOYMENT_NAME", "DEPLOYMENT_NAME"},
		"bootstrap_user":  {"PROVISIONER_BOOTSTRAP_USER", "BOOTSTRAP_USER_NAME"},
		"database.url":    {"PROVISIONER_DATABASE_URL", "DATABASE_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks that every required setting is present
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DeploymentName) == "" {
		return &ConfigurationError{Key: "deployment_name", Reason: "not set (export DEPLOYMENT_NAME)"}
	}
	if strings.TrimSpace(c.BootstrapUser) == "" {
		return &ConfigurationError{Key: "bootstrap_user", Reason: "not set (export BOOTSTRAP_USER_NAME)"}
	}
	if len(c.Graph.Addrs) == 0 {
		return &ConfigurationError{Key: "graph.addrs", Reason: "at least one graph store address is required"}
	}
	if c.Graph.MaxRetries < 1 {
		return &ConfigurationError{Key: "graph.max_retries", Reason: fmt.Sprintf("must be at least 1, got %d", c.Graph.MaxRetries)}
	}
	if c.Graph.Concurrency < 1 {
		return &ConfigurationError{Key: "graph.concurrency", Reason: fmt.Sprintf("must be at least 1, got %d", c.Graph.Concurrency)}
	}
	if c.Database.URL == "" {
		return &ConfigurationError{Key: "database.url", Reason: "not set (export DATABASE_URL)"}
	}

	switch c.Secrets.Backend {
	case BackendEnv:
	case BackendRedis:
		if c.Secrets.RedisAddr == "" {
			return &ConfigurationError{Key: "secrets.redis_addr", Reason: "required for the redis backend"}
		}
	default:
		return &ConfigurationError{Key: "secrets.backend", Reason: fmt.Sprintf("must be %q or %q, got %q", BackendEnv, BackendRedis, c.Secrets.Backend)}
	}

	return nil
}
