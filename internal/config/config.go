// Package config loads orderstate settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPort          = 8080
	DefaultDBPath        = "./data/orderstate.db"
	DefaultBaseFee int64 = 5000
	DefaultTokenTTL      = 24 * time.Hour
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Remote  RemoteConfig  `yaml:"remote"`
	Auth    AuthConfig    `yaml:"auth"`
	Cart    CartConfig    `yaml:"cart"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// RemoteConfig selects the remote gateway. With no DatabaseURL the server runs
// against the in-memory gateway, optionally seeded from SeedPath.
type RemoteConfig struct {
	DatabaseURL        string `yaml:"database_url"`
	Migrate            bool   `yaml:"migrate"`
	GCSBucket          string `yaml:"gcs_bucket"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
	PublicBaseURL      string `yaml:"public_base_url"`
	SeedPath           string `yaml:"seed_path"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type CartConfig struct {
	BaseDeliveryFee int64 `yaml:"base_delivery_fee"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrNegativeFee   = errors.New("base delivery fee must not be negative")
	ErrInvalidPort   = errors.New("port out of range")
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// Load reads the YAML file at path (skipped when path is empty or missing),
// applies environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// FromEnv loads the file named by CONFIG_PATH, if any.
func FromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("failed to parse PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("BASE_DELIVERY_FEE"); v != "" {
		fee, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse BASE_DELIVERY_FEE: %w", err)
		}
		c.Cart.BaseDeliveryFee = fee
	}
	c.Storage.DBPath = getEnv("DB_PATH", c.Storage.DBPath)
	c.Remote.DatabaseURL = getEnv("DATABASE_URL", c.Remote.DatabaseURL)
	c.Remote.GCSBucket = getEnv("GCS_BUCKET", c.Remote.GCSBucket)
	c.Remote.GCSCredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.Remote.GCSCredentialsFile)
	c.Remote.SeedPath = getEnv("SEED_PATH", c.Remote.SeedPath)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = DefaultDBPath
	}
	if c.Cart.BaseDeliveryFee == 0 {
		c.Cart.BaseDeliveryFee = DefaultBaseFee
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}
	if c.Cart.BaseDeliveryFee < 0 {
		return ErrNegativeFee
	}
	if c.Auth.JWTSecret == "" {
		return ErrMissingSecret
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
