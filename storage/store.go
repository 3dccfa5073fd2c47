package storage

import (
	"context"

	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
)

// Driver identifiers for the durable session scope.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Store is a string key/value store backing one session storage scope.
type Store interface {
	// Get returns the value and whether the key was present
	Get(ctx context.Context, key string) (string, bool, error)

	// Set creates or overwrites a key
	Set(ctx context.Context, key, value string) error

	// Delete removes keys; missing keys are ignored
	Delete(ctx context.Context, keys ...string) error

	// Close releases any connection held by the store
	Close() error
}

// Config selects and configures a durable store.
type Config struct {
	Driver string
	Prefix string
	Redis  RedisConfig
	SQLite SQLiteConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// SQLiteConfig holds the database location.
type SQLiteConfig struct {
	DSN string
}

// Open builds the store named by cfg.Driver, defaulting to memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		return NewRedisStore(ctx, cfg.Redis, cfg.Prefix)
	case DriverSQLite:
		return OpenSQLStore(cfg.SQLite.DSN)
	default:
		return nil, apperrors.Wrapf(apperrors.ErrUnsupported, "[storage.Open] driver %q", cfg.Driver)
	}
}
