package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for avrctl.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Status    StatusConfig    `yaml:"status"`
	Health    HealthConfig    `yaml:"health"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// MQTT is optional: when disabled no events are published and the command
// bridge is not started.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Used when Output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// CatalogConfig controls how the command catalog is seeded.
type CatalogConfig struct {
	// SeedBuiltin loads the embedded receiver catalog on startup.
	SeedBuiltin bool `yaml:"seed_builtin"`

	// Paths are extra directories of catalog YAML documents.
	Paths []string `yaml:"paths"`
}

// ExecutorConfig contains command executor settings.
type ExecutorConfig struct {
	// Timeout is the default per-command timeout.
	Timeout time.Duration `yaml:"timeout"`

	// StrictPlaceholders rejects commands whose template still contains
	// placeholders after substitution. Off by default: they are sent as-is.
	StrictPlaceholders bool `yaml:"strict_placeholders"`

	// ValidateParameters checks parameters against the catalog's declared
	// types, bounds and valid values before dispatch.
	ValidateParameters bool `yaml:"validate_parameters"`
}

// DiscoveryConfig contains discovery engine settings.
type DiscoveryConfig struct {
	// Mode is the strategy used by scheduled runs: "mdns", "http" or "both".
	Mode string `yaml:"mode"`

	// Interval between scheduled discovery runs. Zero disables them.
	Interval time.Duration `yaml:"interval"`

	// Duration is how long each passive listening window lasts.
	Duration time.Duration `yaml:"duration"`

	// Subnet to scan. Empty means auto-detect.
	Subnet string `yaml:"subnet"`

	// ScanPort is the HTTP port tried on each host.
	ScanPort int `yaml:"scan_port"`

	// ScanTimeout bounds each scan request.
	ScanTimeout time.Duration `yaml:"scan_timeout"`

	// IdentifyTimeout bounds the model identification request.
	IdentifyTimeout time.Duration `yaml:"identify_timeout"`

	// Parallelism caps concurrent requests during a subnet sweep.
	Parallelism int `yaml:"parallelism"`

	// SweepInterval between staleness sweeps. Zero disables them.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// MaxAge after which an unseen device is marked inactive.
	MaxAge time.Duration `yaml:"max_age"`
}

// StatusConfig contains status reader settings.
type StatusConfig struct {
	Timeout time.Duration `yaml:"timeout"`

	// PollInterval between status samples of PollTargets. Zero disables polling.
	PollInterval time.Duration `yaml:"poll_interval"`

	PollTargets []StatusTarget `yaml:"poll_targets"`
}

// StatusTarget is a receiver whose status is sampled periodically.
type StatusTarget struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HealthConfig controls the daemon's periodic dependency checks.
type HealthConfig struct {
	// Interval between checks of the database, MQTT and InfluxDB.
	// Zero disables the periodic checks; the startup check always runs.
	Interval time.Duration `yaml:"interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AVRCTL_SECTION_KEY
// For example: AVRCTL_DATABASE_PATH, AVRCTL_DISCOVERY_SUBNET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Used when no config file exists.
func Default() (*Config, error) {
	cfg := defaultConfig()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/avrctl.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "avrctl",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/avrctl.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
		Catalog: CatalogConfig{
			SeedBuiltin: true,
		},
		Executor: ExecutorConfig{
			Timeout: 5 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Mode:            "both",
			Interval:        15 * time.Minute,
			Duration:        5 * time.Second,
			ScanPort:        80,
			ScanTimeout:     500 * time.Millisecond,
			IdentifyTimeout: 2 * time.Second,
			Parallelism:     32,
			SweepInterval:   time.Hour,
			MaxAge:          24 * time.Hour,
		},
		Status: StatusConfig{
			Timeout:      3 * time.Second,
			PollInterval: 30 * time.Second,
		},
		Health: HealthConfig{
			Interval: time.Minute,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AVRCTL_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Database
	if v := os.Getenv("AVRCTL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("AVRCTL_MQTT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AVRCTL_MQTT_ENABLED: %w", err)
		}
		cfg.MQTT.Enabled = enabled
	}
	if v := os.Getenv("AVRCTL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AVRCTL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AVRCTL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("AVRCTL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("AVRCTL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Discovery
	if v := os.Getenv("AVRCTL_DISCOVERY_SUBNET"); v != "" {
		cfg.Discovery.Subnet = v
	}
	if v := os.Getenv("AVRCTL_DISCOVERY_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AVRCTL_DISCOVERY_PARALLELISM: %w", err)
		}
		cfg.Discovery.Parallelism = n
	}

	return nil
}

// Validate checks the configuration for errors.
// Every problem is reported, not just the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if c.Executor.Timeout <= 0 {
		errs = append(errs, "executor.timeout must be positive")
	}

	switch strings.ToLower(c.Discovery.Mode) {
	case "mdns", "http", "both":
	default:
		errs = append(errs, "discovery.mode must be mdns, http, or both")
	}
	if c.Discovery.Subnet != "" {
		if _, _, err := net.ParseCIDR(c.Discovery.Subnet); err != nil {
			errs = append(errs, fmt.Sprintf("discovery.subnet %q is not a CIDR", c.Discovery.Subnet))
		}
	}
	if c.Discovery.ScanPort < 1 || c.Discovery.ScanPort > 65535 {
		errs = append(errs, "discovery.scan_port must be between 1 and 65535")
	}
	if c.Discovery.Parallelism < 1 {
		errs = append(errs, "discovery.parallelism must be at least 1")
	}
	if c.Discovery.MaxAge <= 0 {
		errs = append(errs, "discovery.max_age must be positive")
	}

	for i, t := range c.Status.PollTargets {
		if t.Host == "" {
			errs = append(errs, fmt.Sprintf("status.poll_targets[%d].host is required", i))
		}
	}

	if c.Health.Interval < 0 {
		errs = append(errs, "health.interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
