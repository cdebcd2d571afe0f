package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL   string `yaml:"database_url"`
	RedisURL      string `yaml:"redis_url"`
	ServerPort    string `yaml:"server_port"`
	DriveAPIURL   string `yaml:"drive_api_url"`
	DriveAPIKey   string `yaml:"drive_api_key"`
	PublishAPIURL string `yaml:"publish_api_url"`
	PublishAPIKey string `yaml:"publish_api_key"`
	UserAgent     string `yaml:"user_agent"`
	Timeout       string `yaml:"timeout"`
	SchedulePoll  string `yaml:"schedule_poll"`
}

// LoadFromFile loads config from a YAML file. database_url is required.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	c := &Config{
		DatabaseURL:   f.DatabaseURL,
		RedisURL:      f.RedisURL,
		ServerPort:    f.ServerPort,
		DriveAPIURL:   f.DriveAPIURL,
		DriveAPIKey:   f.DriveAPIKey,
		PublishAPIURL: f.PublishAPIURL,
		PublishAPIKey: f.PublishAPIKey,
		UserAgent:     f.UserAgent,
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			c.Timeout = d
		}
	}
	if f.SchedulePoll != "" {
		if d, err := time.ParseDuration(f.SchedulePoll); err == nil {
			c.SchedulePoll = d
		}
	}
	applyDefaults(c)
	return c, nil
}
