package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration values, read from the environment.
type Config struct {
	HTTPPort      string `envconfig:"HTTP_PORT" default:"8080"`
	DatabaseDSN   string `envconfig:"DATABASE_DSN" default:"file:drugstock.db?_pragma=busy_timeout(5000)"`
	Secret        string `envconfig:"SECRET" default:"dev_secret"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	AdminEmail    string `envconfig:"ADMIN_EMAIL" default:"admin@example.com"`
	AdminName     string `envconfig:"ADMIN_NAME" default:"Admin"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD" default:"admin123"`
}

// Load processes environment variables into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
