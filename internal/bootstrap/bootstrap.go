// Package bootstrap wires the client layer together: configuration, logging, the event bus,
// the HTTP client, session storage, the auth manager and the domain services.
package bootstrap

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/jrsteele09/equiptrack-client/auth"
	"github.com/jrsteele09/equiptrack-client/equipment"
	"github.com/jrsteele09/equiptrack-client/events"
	"github.com/jrsteele09/equiptrack-client/httpclient"
	"github.com/jrsteele09/equiptrack-client/internal/config"
	"github.com/jrsteele09/equiptrack-client/storage"
	"github.com/jrsteele09/equiptrack-client/users"
	"github.com/rs/zerolog"
)

// App is the composed client.
type App struct {
	Config    config.Config
	Log       zerolog.Logger
	Bus       *events.Bus
	Client    *httpclient.Client
	Auth      *auth.Manager
	Users     *users.Service
	Equipment *equipment.Service

	durable storage.Store
}

// Option customises New
type Option func(*options)

type options struct {
	logger       *zerolog.Logger
	httpOptions  []httpclient.Option
	durableStore storage.Store
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &l
	}
}

// WithHTTPOptions passes extra options to httpclient.New.
func WithHTTPOptions(opts ...httpclient.Option) Option {
	return func(o *options) {
		o.httpOptions = append(o.httpOptions, opts...)
	}
}

// WithDurableStore uses s instead of opening the configured storage driver.
func WithDurableStore(s storage.Store) Option {
	return func(o *options) {
		o.durableStore = s
	}
}

// NewLogger builds the logger for cfg: console output in DEV, JSON otherwise.
func NewLogger(cfg config.EnvConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if strings.EqualFold(cfg.GetEnv(), "DEV") {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(level).With().Timestamp().Str("app", cfg.GetAppName()).Logger()
}

// New composes the app. The durable session scope uses the configured storage driver and the
// session scope is in memory.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := NewLogger(cfg)
	if o.logger != nil {
		logger = *o.logger
	}

	durable := o.durableStore
	if durable == nil {
		var err error
		durable, err = storage.Open(ctx, storageConfig(cfg))
		if err != nil {
			return nil, err
		}
	}

	bus := events.New(events.WithLogger(logger))
	client := httpclient.New(httpclient.Config{
		BaseURL:    cfg.GetBaseURL(),
		Timeout:    cfg.GetTimeout(),
		MaxRetries: cfg.GetMaxRetries(),
		RetryDelay: cfg.GetRetryDelay(),
	}, append([]httpclient.Option{httpclient.WithBus(bus), httpclient.WithLogger(logger)}, o.httpOptions...)...)

	manager, err := auth.NewManager(client, auth.Persistence{Durable: durable, Session: storage.NewMemoryStore()},
		auth.WithLogger(logger), auth.WithRefreshHorizon(cfg.GetRefreshHorizon()))
	if err != nil {
		return nil, errors.Join(err, durable.Close())
	}

	return &App{
		Config:    cfg,
		Log:       logger,
		Bus:       bus,
		Client:    client,
		Auth:      manager,
		Users:     users.NewService(client, bus),
		Equipment: equipment.NewService(client, bus),
		durable:   durable,
	}, nil
}

func storageConfig(cfg config.StorageConfig) storage.Config {
	return storage.Config{
		Driver: cfg.GetStorageDriver(),
		Prefix: cfg.GetStoragePrefix(),
		Redis: storage.RedisConfig{
			Addr:     cfg.GetRedisAddr(),
			Username: cfg.GetRedisUsername(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		},
		SQLite: storage.SQLiteConfig{DSN: cfg.GetSQLiteDSN()},
	}
}

// SignIn restores a stored session, or logs in with the configured credentials when there
// is none.
func (a *App) SignIn(ctx context.Context) (*users.Profile, error) {
	restored, err := a.Auth.InitFromStorage(ctx)
	if err != nil {
		a.Log.Warn().Err(err).Msg("stored session rejected")
	}
	if restored {
		return a.Auth.User(), nil
	}

	email, password := a.Config.GetEmail(), a.Config.GetPassword()
	if email == "" || password == "" {
		return nil, errors.New("[App.SignIn] no stored session and no credentials configured")
	}
	s, err := a.Auth.Login(ctx, auth.Credentials{Email: email, Password: password, RememberMe: true})
	if err != nil {
		return nil, err
	}
	return s.User, nil
}

// Close cancels in-flight requests and closes the durable store.
func (a *App) Close() error {
	for _, p := range a.Client.Pending() {
		a.Client.Cancel(p.ID)
	}
	a.Bus.OffAll()
	return a.durable.Close()
}
