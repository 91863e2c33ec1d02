package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tasksync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Sync         SyncConfig         `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Remote       RemoteConfig       `yaml:"remote"`
	API          APIConfig          `yaml:"api"`
	Backup       BackupConfig       `yaml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SyncConfig struct {
	RemoteTimeout time.Duration `yaml:"remote_timeout"`
	Retry         RetryConfig   `yaml:"retry"`
}

// RetryConfig controls re-triggering after a failed batch. Off by default.
type RetryConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

type ConnectivityConfig struct {
	Probe    string        `yaml:"probe"` // tcp | http
	Address  string        `yaml:"address"`
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RemoteConfig struct {
	Kind  string           `yaml:"kind"` // memory | redis | http
	Redis RedisConfig      `yaml:"redis"`
	HTTP  RemoteHTTPConfig `yaml:"http"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type RemoteHTTPConfig struct {
	BaseURL string  `yaml:"base_url"`
	APIKey  string  `yaml:"api_key"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	HeaderAPIKey string   `yaml:"header_api_key"`
	APIKeys      []string `yaml:"api_keys"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен, но если он есть и битый, это ошибка
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Sync.RemoteTimeout <= 0 {
		return errors.New("sync.remote_timeout must be positive")
	}

	switch c.Connectivity.Probe {
	case "tcp":
		if c.Connectivity.Address == "" {
			return errors.New("connectivity.address is required for tcp probe")
		}
	case "http":
		if c.Connectivity.URL == "" {
			return errors.New("connectivity.url is required for http probe")
		}
	default:
		return fmt.Errorf("unknown connectivity probe %q", c.Connectivity.Probe)
	}

	switch c.Remote.Kind {
	case "memory":
	case "redis":
		if c.Remote.Redis.Address == "" {
			return errors.New("remote.redis.address is required")
		}
	case "http":
		if c.Remote.HTTP.BaseURL == "" {
			return errors.New("remote.http.base_url is required")
		}
	default:
		return fmt.Errorf("unknown remote kind %q", c.Remote.Kind)
	}

	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth enabled without api_keys")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tasksync"
	}
	if c.Sync.RemoteTimeout == 0 {
		c.Sync.RemoteTimeout = models.DefaultRemoteTimeout * time.Second
	}
	if c.Sync.Retry.MaxRetries == 0 {
		c.Sync.Retry.MaxRetries = 5
	}
	if c.Sync.Retry.InitialDelay == 0 {
		c.Sync.Retry.InitialDelay = time.Second
	}
	if c.Sync.Retry.MaxDelay == 0 {
		c.Sync.Retry.MaxDelay = time.Minute
	}
	if c.Sync.Retry.Multiplier == 0 {
		c.Sync.Retry.Multiplier = 2
	}

	c.Connectivity.Probe = strings.ToLower(strings.TrimSpace(c.Connectivity.Probe))
	if c.Connectivity.Probe == "" {
		c.Connectivity.Probe = "tcp"
	}
	if c.Connectivity.Probe == "tcp" && c.Connectivity.Address == "" {
		c.Connectivity.Address = "1.1.1.1:53"
	}
	if c.Connectivity.Interval == 0 {
		c.Connectivity.Interval = models.DefaultProbeInterval * time.Second
	}
	if c.Connectivity.Timeout == 0 {
		c.Connectivity.Timeout = models.DefaultProbeTimeout * time.Second
	}

	c.Remote.Kind = strings.ToLower(strings.TrimSpace(c.Remote.Kind))
	if c.Remote.Kind == "" {
		c.Remote.Kind = "memory"
	}
	if c.Remote.Redis.KeyPrefix == "" {
		c.Remote.Redis.KeyPrefix = "tasksync:task:"
	}
	if c.Remote.HTTP.RPS == 0 {
		c.Remote.HTTP.RPS = 10
	}
	if c.Remote.HTTP.Burst == 0 {
		c.Remote.HTTP.Burst = 20
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 40
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
