package config

import (
	"os"
	"strconv"
	"time"

	"github.com/jrsteele09/equiptrack-client/internal/utils"
	"github.com/rs/zerolog/log"
)

const (
	configFileVar     = "EQUIPTRACK_CONFIG"
	appNameVar        = "EQUIPTRACK_APP_NAME"
	envVar            = "EQUIPTRACK_ENV"
	logLevelVar       = "EQUIPTRACK_LOG_LEVEL"
	baseURLVar        = "EQUIPTRACK_API_URL"
	timeoutVar        = "EQUIPTRACK_TIMEOUT"
	maxRetriesVar     = "EQUIPTRACK_MAX_RETRIES"
	retryDelayVar     = "EQUIPTRACK_RETRY_DELAY"
	refreshHorizonVar = "EQUIPTRACK_REFRESH_HORIZON"
	emailVar          = "EQUIPTRACK_EMAIL"
	passwordVar       = "EQUIPTRACK_PASSWORD"
	storageDriverVar  = "EQUIPTRACK_STORAGE"
	storagePrefixVar  = "EQUIPTRACK_STORAGE_PREFIX"
	redisAddrVar      = "EQUIPTRACK_REDIS_ADDR"
	redisUsernameVar  = "EQUIPTRACK_REDIS_USERNAME"
	redisPasswordVar  = "EQUIPTRACK_REDIS_PASSWORD"
	redisDBVar        = "EQUIPTRACK_REDIS_DB"
	sqliteDSNVar      = "EQUIPTRACK_SQLITE_DSN"
)

// Defaults
const (
	DefaultBaseURL        = "http://localhost:5000/api"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 1
	DefaultRetryDelay     = time.Second
	DefaultRefreshHorizon = 300 * time.Second
	DefaultStorageDriver  = "memory"
)

// EnvVars reads each setting from its environment variable, falling back to the optional
// YAML file and then to the default.
type EnvVars struct {
	file *fileConfig
}

var _ Config = EnvVars{}

func (e EnvVars) f() *fileConfig {
	if e.file == nil {
		return &fileConfig{}
	}
	return e.file
}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, or(e.f().AppName, "EquipTrack"))
}

func (e EnvVars) GetEnv() string {
	return GetEnv(envVar, or(e.f().Env, "DEV"))
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, or(e.f().LogLevel, "info"))
}

func (e EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, or(e.f().HTTP.BaseURL, DefaultBaseURL))
}

func (e EnvVars) GetTimeout() time.Duration {
	return getDuration(timeoutVar, e.f().HTTP.Timeout, DefaultTimeout)
}

func (e EnvVars) GetMaxRetries() int {
	return getInt(maxRetriesVar, utils.ValueOr(e.f().HTTP.MaxRetries, DefaultMaxRetries))
}

func (e EnvVars) GetRetryDelay() time.Duration {
	return getDuration(retryDelayVar, e.f().HTTP.RetryDelay, DefaultRetryDelay)
}

func (e EnvVars) GetRefreshHorizon() time.Duration {
	return getDuration(refreshHorizonVar, e.f().Auth.RefreshHorizon, DefaultRefreshHorizon)
}

func (e EnvVars) GetEmail() string {
	return GetEnv(emailVar, e.f().Auth.Email)
}

// GetPassword is read from the environment only; it never comes from the config file.
func (e EnvVars) GetPassword() string {
	return GetEnv(passwordVar, "")
}

func (e EnvVars) GetStorageDriver() string {
	return GetEnv(storageDriverVar, or(e.f().Storage.Driver, DefaultStorageDriver))
}

func (e EnvVars) GetStoragePrefix() string {
	return GetEnv(storagePrefixVar, or(e.f().Storage.Prefix, "equiptrack:"))
}

func (e EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, or(e.f().Storage.Redis.Addr, "localhost:6379"))
}

func (e EnvVars) GetRedisUsername() string {
	return GetEnv(redisUsernameVar, e.f().Storage.Redis.Username)
}

func (e EnvVars) GetRedisPassword() string {
	return GetEnv(redisPasswordVar, e.f().Storage.Redis.Password)
}

func (e EnvVars) GetRedisDB() int {
	return getInt(redisDBVar, utils.ValueOr(e.f().Storage.Redis.DB, 0))
}

func (e EnvVars) GetSQLiteDSN() string {
	return GetEnv(sqliteDSNVar, or(e.f().Storage.SQLite.DSN, "./data/equiptrack.db"))
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func or(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func getInt(envVar string, defaultValue int) int {
	raw := os.Getenv(envVar)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("var", envVar).Str("value", raw).Msg("not an integer, using default")
		return defaultValue
	}
	return n
}

// getDuration parses the env var, then the file value, as a Go duration.
func getDuration(envVar, fileValue string, defaultValue time.Duration) time.Duration {
	for _, candidate := range []struct{ source, raw string }{{envVar, os.Getenv(envVar)}, {"file", fileValue}} {
		if candidate.raw == "" {
			continue
		}
		d, err := time.ParseDuration(candidate.raw)
		if err != nil {
			log.Warn().Str("source", candidate.source).Str("value", candidate.raw).Msg("not a duration, ignoring")
			continue
		}
		return d
	}
	return defaultValue
}
