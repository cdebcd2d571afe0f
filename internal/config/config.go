package config

import (
	"errors"
	"os"
	"time"
)

// ErrMissingDatabaseURL is returned when no database DSN is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Config holds application configuration.
type Config struct {
	DatabaseURL   string        `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL      string        `yaml:"redis_url" env:"REDIS_URL"`
	ServerPort    string        `yaml:"server_port" env:"SERVER_PORT"`
	DriveAPIURL   string        `yaml:"drive_api_url" env:"DRIVE_API_URL"`
	DriveAPIKey   string        `yaml:"drive_api_key" env:"DRIVE_API_KEY"`
	PublishAPIURL string        `yaml:"publish_api_url" env:"PUBLISH_API_URL"`
	PublishAPIKey string        `yaml:"publish_api_key" env:"PUBLISH_API_KEY"`
	UserAgent     string        `yaml:"user_agent" env:"DRIVE_USER_AGENT"`
	Timeout       time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT"`
	SchedulePoll  time.Duration `yaml:"schedule_poll" env:"SCHEDULE_POLL_INTERVAL"`
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries to load .env.local and .env from the
// current directory first. DATABASE_URL is required; everything else has a
// default or is optional (empty drive/publish API URLs select the fixed
// stand-in collaborators).
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		DriveAPIURL:   os.Getenv("DRIVE_API_URL"),
		DriveAPIKey:   os.Getenv("DRIVE_API_KEY"),
		PublishAPIURL: os.Getenv("PUBLISH_API_URL"),
		PublishAPIKey: os.Getenv("PUBLISH_API_KEY"),
		UserAgent:     os.Getenv("DRIVE_USER_AGENT"),
	}
	applyDefaults(c)
	if s := os.Getenv("HTTP_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.Timeout = d
		}
	}
	if s := os.Getenv("SCHEDULE_POLL_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.SchedulePoll = d
		}
	}
	if c.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return c, nil
}

func applyDefaults(c *Config) {
	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.UserAgent == "" {
		c.UserAgent = "DriveCast/1.0"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.SchedulePoll <= 0 {
		c.SchedulePoll = time.Minute
	}
}
