package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	HTTPConfig
	AuthConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type HTTPConfig interface {
	GetBaseURL() string
	GetTimeout() time.Duration
	GetMaxRetries() int
	GetRetryDelay() time.Duration
}

type AuthConfig interface {
	GetRefreshHorizon() time.Duration
	GetEmail() string
	GetPassword() string
}

type StorageConfig interface {
	GetStorageDriver() string
	GetStoragePrefix() string
	GetRedisAddr() string
	GetRedisUsername() string
	GetRedisPassword() string
	GetRedisDB() int
	GetSQLiteDSN() string
}

type mainConfig struct {
	EnvVars
}

// New resolves settings from environment variables and defaults only.
func New() Config {
	return mainConfig{}
}

type loaderOptions struct {
	dotEnv   bool
	filePath string
}

// LoaderOption configures Load
type LoaderOption func(*loaderOptions)

// WithDotEnv toggles loading a .env file from the working directory before reading config.
func WithDotEnv(enabled bool) LoaderOption {
	return func(o *loaderOptions) {
		o.dotEnv = enabled
	}
}

// WithFile overrides the YAML file path otherwise taken from EQUIPTRACK_CONFIG.
func WithFile(path string) LoaderOption {
	return func(o *loaderOptions) {
		o.filePath = path
	}
}

// Load resolves each setting from the environment, then the YAML file, then the default.
func Load(options ...LoaderOption) (Config, error) {
	o := loaderOptions{dotEnv: true}
	for _, opt := range options {
		opt(&o)
	}

	if o.dotEnv {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("reading .env file")
		}
	}
	if o.filePath == "" {
		o.filePath = os.Getenv(configFileVar)
	}
	if o.filePath == "" {
		return New(), nil
	}

	f, err := readFile(o.filePath)
	if err != nil {
		return nil, err
	}
	return mainConfig{EnvVars{file: f}}, nil
}
