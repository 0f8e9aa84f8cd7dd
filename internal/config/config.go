package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Enrich   EnrichConfig   `yaml:"enrich"`
	Registry RegistryConfig `yaml:"registry"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	// Driver selects the gorm backend: "sqlite" (default, local single-user
	// library) or "mysql".
	Driver string       `yaml:"driver"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	MySQL  MySQLConfig  `yaml:"mysql"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type CacheConfig struct {
	// Backend selects "redis" or "memory". When redis is configured but
	// unreachable at startup the server falls back to memory.
	Backend    string        `yaml:"backend"`
	Redis      RedisConfig   `yaml:"redis"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type EnrichConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ImageModel  string        `yaml:"image_model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
}

type RegistryConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

// Default returns a configuration that works with no config file at all:
// sqlite under ./data and the in-memory cache.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "./data/neurogallery.db"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Redis.Port == 0 {
		c.Cache.Redis.Port = 6379
	}
	if c.Cache.SessionTTL == 0 {
		c.Cache.SessionTTL = 30 * 24 * time.Hour
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = time.Hour
	}
	if c.Enrich.Model == "" {
		c.Enrich.Model = "gpt-4o-mini"
	}
	if c.Enrich.ImageModel == "" {
		c.Enrich.ImageModel = "dall-e-3"
	}
	if c.Enrich.Timeout == 0 {
		c.Enrich.Timeout = 60 * time.Second
	}
	if c.Registry.BaseURL == "" {
		c.Registry.BaseURL = "https://civitai.com"
	}
	if c.Registry.Timeout == 0 {
		c.Registry.Timeout = 30 * time.Second
	}
}

// applyEnv layers environment variable overrides on top of file values.
func (c *Config) applyEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		c.Enrich.APIKey = apiKey
	}
	if apiKey := os.Getenv("CIVITAI_API_KEY"); apiKey != "" {
		c.Registry.APIKey = apiKey
	}
	if path := os.Getenv("NEUROGALLERY_DB_PATH"); path != "" {
		c.Database.SQLite.Path = path
	}
	if host := os.Getenv("NEUROGALLERY_REDIS_HOST"); host != "" {
		c.Cache.Redis.Host = host
		c.Cache.Backend = "redis"
	}
}
