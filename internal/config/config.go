package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	S3        S3Config
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Log       LogConfig
	FrontPage string
}

type ServerConfig struct {
	Port           string
	Host           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TrustedProxies []string
}

type DatabaseConfig struct {
	URL              string
	MaxConnections   int
	StatementTimeout time.Duration
	AutoMigrate      bool
}

type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	CreateBucket   bool
	Timeout        time.Duration
	DeleteRPS      float64
}

type AuthConfig struct {
	APIKeyPepper string
}

type RateLimitConfig struct {
	// Backend is "memory" (per process) or "redis" (shared across replicas).
	Backend string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "3000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("DB_MAX_CONNECTIONS", 10)
	v.SetDefault("DB_STATEMENT_TIMEOUT", "15s")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_FORCE_PATH_STYLE", true)
	v.SetDefault("S3_CREATE_BUCKET", true)
	v.SetDefault("S3_TIMEOUT", "30s")
	v.SetDefault("S3_DELETE_RPS", 20)
	v.SetDefault("RATE_LIMIT_BACKEND", "memory")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Host:           v.GetString("SERVER_HOST"),
			ReadTimeout:    v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("SERVER_WRITE_TIMEOUT"),
			TrustedProxies: splitList(v.GetString("TRUSTED_PROXIES")),
		},
		Database: DatabaseConfig{
			URL:              v.GetString("DATABASE_URL"),
			MaxConnections:   v.GetInt("DB_MAX_CONNECTIONS"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
			AutoMigrate:      v.GetBool("DB_AUTO_MIGRATE"),
		},
		S3: S3Config{
			Endpoint:       v.GetString("S3_ENDPOINT"),
			Region:         v.GetString("S3_REGION"),
			Bucket:         v.GetString("S3_BUCKET"),
			AccessKey:      v.GetString("S3_ACCESS_KEY_ID"),
			SecretKey:      v.GetString("S3_SECRET_ACCESS_KEY"),
			ForcePathStyle: v.GetBool("S3_FORCE_PATH_STYLE"),
			CreateBucket:   v.GetBool("S3_CREATE_BUCKET"),
			Timeout:        v.GetDuration("S3_TIMEOUT"),
			DeleteRPS:      v.GetFloat64("S3_DELETE_RPS"),
		},
		Auth: AuthConfig{
			APIKeyPepper: v.GetString("API_KEY_PEPPER"),
		},
		RateLimit: RateLimitConfig{
			Backend: strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		FrontPage: v.GetString("FRONT_PAGE_PATH"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Auth.APIKeyPepper == "" {
		log.Println("WARNING: API_KEY_PEPPER is not set; API keys are hashed without a pepper")
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.S3.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required"))
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when RATE_LIMIT_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis, got %q", c.RateLimit.Backend))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
