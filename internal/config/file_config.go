package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML layout. Pointers distinguish unset values from zero ones.
type fileConfig struct {
	AppName  string `yaml:"app_name"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	HTTP struct {
		BaseURL    string `yaml:"base_url"`
		Timeout    string `yaml:"timeout"` // Go duration, e.g. "30s"
		MaxRetries *int   `yaml:"max_retries"`
		RetryDelay string `yaml:"retry_delay"`
	} `yaml:"http"`

	Auth struct {
		RefreshHorizon string `yaml:"refresh_horizon"`
		Email          string `yaml:"email"`
	} `yaml:"auth"`

	Storage struct {
		Driver string `yaml:"driver"` // memory, redis or sqlite
		Prefix string `yaml:"prefix"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			DB       *int   `yaml:"db"`
		} `yaml:"redis"`
		SQLite struct {
			DSN string `yaml:"dsn"`
		} `yaml:"sqlite"`
	} `yaml:"storage"`
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config.readFile] %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("[config.readFile] %s: %w", path, err)
	}
	return &f, nil
}
