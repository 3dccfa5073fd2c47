package bootstrap_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/equiptrack-client/equipment"
	"github.com/jrsteele09/equiptrack-client/internal/bootstrap"
	"github.com/jrsteele09/equiptrack-client/internal/config"
	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
	"github.com/jrsteele09/equiptrack-client/internal/fakeapi"
	"github.com/jrsteele09/equiptrack-client/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSmokeSignInAndRestore(t *testing.T) {
	api := fakeapi.Start()
	t.Cleanup(api.Close)
	api.AddUser(users.Profile{Username: "tina", Email: "tina@example.com", Role: users.RoleTeacher, Active: true}, "Teach3rPass")
	api.AddEquipment(equipment.Equipment{Name: "Telescope"})

	t.Setenv("EQUIPTRACK_CONFIG", "")
	t.Setenv("EQUIPTRACK_API_URL", api.URL())
	t.Setenv("EQUIPTRACK_EMAIL", "tina@example.com")
	t.Setenv("EQUIPTRACK_PASSWORD", "Teach3rPass")
	t.Setenv("EQUIPTRACK_STORAGE", "sqlite")
	t.Setenv("EQUIPTRACK_SQLITE_DSN", filepath.Join(t.TempDir(), "session.db"))
	ctx := context.Background()

	app, err := bootstrap.New(ctx, config.New(), bootstrap.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	user, err := app.SignIn(ctx)
	require.NoError(t, err)
	require.Equal(t, "tina", user.Username)

	page, err := app.Equipment.List(ctx, equipment.ListParams{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.NoError(t, app.Close())

	// a second run restores the remembered session from SQLite
	app, err = bootstrap.New(ctx, config.New(), bootstrap.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	user, err = app.SignIn(ctx)
	require.NoError(t, err)
	require.Equal(t, "tina", user.Username)
	require.Equal(t, 1, api.Calls("POST /auth/login"))
}

func TestSignInWithoutCredentials(t *testing.T) {
	t.Setenv("EQUIPTRACK_CONFIG", "")
	t.Setenv("EQUIPTRACK_STORAGE", "memory")
	t.Setenv("EQUIPTRACK_EMAIL", "")
	t.Setenv("EQUIPTRACK_PASSWORD", "")

	app, err := bootstrap.New(context.Background(), config.New(), bootstrap.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	_, err = app.SignIn(context.Background())
	require.Error(t, err)
}

func TestUnsupportedStorageDriver(t *testing.T) {
	t.Setenv("EQUIPTRACK_CONFIG", "")
	t.Setenv("EQUIPTRACK_STORAGE", "etcd")

	_, err := bootstrap.New(context.Background(), config.New(), bootstrap.WithLogger(zerolog.Nop()))
	require.ErrorIs(t, err, apperrors.ErrUnsupported)
}
