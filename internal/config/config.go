package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Session   SessionConfig
	Redis     RedisConfig
	Polling   PollingConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// BackendConfig points at the REST task service.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SessionConfig struct {
	StaleAfter time.Duration
	// Store selects the credential store: memory, file or redis.
	Store    string
	FilePath string
	RedisKey string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type PollingConfig struct {
	Interval  time.Duration
	AutoStart bool
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

// LogConfig enables a size-rotated log file next to stdout when File is set.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5173")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("BACKEND_URL", "http://localhost:8000/api")
	viper.SetDefault("BACKEND_TIMEOUT", 15)
	viper.SetDefault("SESSION_STALE_AFTER", 300)
	viper.SetDefault("CREDENTIAL_STORE", StoreMemory)
	viper.SetDefault("CREDENTIAL_FILE", defaultCredentialFile())
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_KEY", "taskboard:auth_token")
	viper.SetDefault("POLL_INTERVAL", 30)
	viper.SetDefault("POLL_AUTOSTART", true)
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 1.0)
	viper.SetDefault("RATE_LIMIT_BURST", 3)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("LOG_MAX_SIZE_MB", 100)
	viper.SetDefault("LOG_MAX_BACKUPS", 3)
	viper.SetDefault("LOG_MAX_AGE_DAYS", 28)
	viper.SetDefault("LOG_COMPRESS", false)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // SSE streams stay open
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(viper.GetString("BACKEND_URL"), "/"),
			Timeout: time.Duration(viper.GetInt("BACKEND_TIMEOUT")) * time.Second,
		},
		Session: SessionConfig{
			StaleAfter: time.Duration(viper.GetInt("SESSION_STALE_AFTER")) * time.Second,
			Store:      strings.ToLower(strings.TrimSpace(viper.GetString("CREDENTIAL_STORE"))),
			FilePath:   viper.GetString("CREDENTIAL_FILE"),
			RedisKey:   viper.GetString("REDIS_KEY"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Polling: PollingConfig{
			Interval:  time.Duration(viper.GetInt("POLL_INTERVAL")) * time.Second,
			AutoStart: viper.GetBool("POLL_AUTOSTART"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Log: LogConfig{
			File:       viper.GetString("LOG_FILE"),
			MaxSizeMB:  viper.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: viper.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: viper.GetInt("LOG_MAX_AGE_DAYS"),
			Compress:   viper.GetBool("LOG_COMPRESS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Session.Store == StoreRedis && cfg.Redis.Host == "" {
		log.Println("WARNING: CREDENTIAL_STORE=redis but REDIS_HOST is not set; falling back to memory")
		cfg.Session.Store = StoreMemory
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_URL must not be empty")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be > 0")
	}
	if c.Session.StaleAfter <= 0 {
		return fmt.Errorf("SESSION_STALE_AFTER must be > 0")
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	switch c.Session.Store {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		return fmt.Errorf("unsupported CREDENTIAL_STORE %q", c.Session.Store)
	}
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("LOG_MAX_SIZE_MB must be > 0")
	}
	if c.Session.Store == StoreFile && c.Session.FilePath == "" {
		return fmt.Errorf("CREDENTIAL_FILE must be set when CREDENTIAL_STORE=file")
	}
	return nil
}

// RedisAddr returns host:port for the go-redis client.
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func defaultCredentialFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data/auth_token.json"
	}
	return home + "/.taskboard/auth_token.json"
}
