package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	Env             string `env:"APP_ENV" default:"development"`
	LogLevel        string `env:"LOG_LEVEL" default:"info"`
	Port            string `env:"PORT" default:"8088"`
	DBType          string `env:"STORAGE_BACKEND" default:"sqlite"`
	SQLitePath      string `env:"SQLITE_PATH" default:"data/sleep_bot.db"`
	DBDSN           string `env:"POSTGRES_DSN"`
	DataFile        string `env:"DATA_FILE" default:"data/sleep_bot.json"`
	WebhookSecret   string `env:"WEBHOOK_SECRET"`
	StatsWindowDays int    `env:"STATS_WINDOW_DAYS" default:"7"`
}

var (
	cfg     *Config
	loadErr error
	once    sync.Once
)

// Load reads .env (if present) and the process environment once.
func Load() (*Config, error) {
	once.Do(func() {
		// .env is optional
		_ = godotenv.Load()
		cfg, loadErr = FromEnv()
	})
	return cfg, loadErr
}

// FromEnv maps the current environment onto a validated Config.
func FromEnv() (*Config, error) {
	var c Config
	if err := env.Load(&c, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.DBType {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORAGE_BACKEND=sqlite")
		}
	case "postgres":
		if c.DBDSN == "" {
			return errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
		}
	case "file":
		if c.DataFile == "" {
			return errors.New("DATA_FILE is required when STORAGE_BACKEND=file")
		}
	default:
		return errors.New("STORAGE_BACKEND must be one of: sqlite, postgres, file")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if c.StatsWindowDays < 1 {
		return errors.New("STATS_WINDOW_DAYS must be positive")
	}
	return nil
}
