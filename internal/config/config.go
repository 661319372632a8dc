package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Salesforce SalesforceConfig `mapstructure:"salesforce"`
	Bulk       BulkConfig       `mapstructure:"bulk"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
}

// SalesforceConfig describes an already authenticated org session.
type SalesforceConfig struct {
	InstanceURL string `mapstructure:"instance_url"`
	APIVersion  string `mapstructure:"api_version"`
	AccessToken string `mapstructure:"access_token"`
}

type BulkConfig struct {
	IntervalSeconds   int     `mapstructure:"interval_seconds"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	Workers           int     `mapstructure:"workers"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // 0 disables throttling
	Burst             int     `mapstructure:"burst"`
	SweepSchedule     string  `mapstructure:"sweep_schedule"` // cron spec for refreshing open ledger jobs, empty disables
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// Interval returns the default polling interval.
func (c BulkConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Timeout returns the per-request deadline.
func (c BulkConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BulkURL returns the Bulk API 2.0 base URL, e.g.
// https://example.my.salesforce.com/services/data/v64.0/jobs
func (c SalesforceConfig) BulkURL() string {
	instance := strings.TrimRight(c.InstanceURL, "/")
	if !strings.HasPrefix(instance, "http://") && !strings.HasPrefix(instance, "https://") {
		instance = "https://" + instance
	}
	version := strings.TrimPrefix(c.APIVersion, "v")
	return fmt.Sprintf("%s/services/data/v%s/jobs", instance, version)
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Salesforce.InstanceURL == "" {
		return fmt.Errorf("salesforce.instance_url is required (or set SF_INSTANCE_URL)")
	}
	if c.Salesforce.AccessToken == "" {
		return fmt.Errorf("salesforce.access_token is required (or set SF_ACCESS_TOKEN)")
	}
	if c.Salesforce.APIVersion == "" {
		return fmt.Errorf("salesforce.api_version must not be empty")
	}
	if c.Bulk.IntervalSeconds <= 0 {
		return fmt.Errorf("bulk.interval_seconds must be positive")
	}
	if c.Bulk.TimeoutSeconds <= 0 {
		return fmt.Errorf("bulk.timeout_seconds must be positive")
	}
	if c.Bulk.RequestsPerSecond < 0 {
		return fmt.Errorf("bulk.requests_per_second must not be negative")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	return nil
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("salesforce.api_version", "64.0")
	v.SetDefault("bulk.interval_seconds", 5)
	v.SetDefault("bulk.timeout_seconds", 30)
	v.SetDefault("bulk.workers", 4)
	v.SetDefault("bulk.requests_per_second", 0)
	v.SetDefault("bulk.burst", 1)
	v.SetDefault("bulk.sweep_schedule", "@every 1m")
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/sfbulk.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.prefix", "bulk")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and connection settings get explicit names
	_ = v.BindEnv("salesforce.instance_url", "SF_INSTANCE_URL")
	_ = v.BindEnv("salesforce.access_token", "SF_ACCESS_TOKEN")
	_ = v.BindEnv("salesforce.api_version", "SF_API_VERSION")
	_ = v.BindEnv("bulk.interval_seconds", "BULK_INTERVAL_SECONDS")
	_ = v.BindEnv("bulk.timeout_seconds", "BULK_TIMEOUT_SECONDS")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "STORAGE_BUCKET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
