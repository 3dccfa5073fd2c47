package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
	"github.com/jrsteele09/equiptrack-client/storage"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) storage.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := storage.Open(context.Background(), storage.Config{
		Driver: storage.DriverRedis,
		Redis:  storage.RedisConfig{Addr: mr.Addr()},
	})
	require.NoError(t, err)
	return s
}

func newSQLStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), storage.Config{
		Driver: storage.DriverSQLite,
		SQLite: storage.SQLiteConfig{DSN: filepath.Join(t.TempDir(), "session.db")},
	})
	require.NoError(t, err)
	return s
}

func TestStores(t *testing.T) {
	factories := map[string]func(t *testing.T) storage.Store{
		"memory": func(*testing.T) storage.Store { return storage.NewMemoryStore() },
		"redis":  newRedisStore,
		"sqlite": newSQLStore,
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			t.Cleanup(func() { _ = s.Close() })

			_, ok, err := s.Get(ctx, "auth_token")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, s.Set(ctx, "auth_token", "abc"))
			require.NoError(t, s.Set(ctx, "auth_token", "def"))
			require.NoError(t, s.Set(ctx, "token_expiry", "1700000000"))

			v, ok, err := s.Get(ctx, "auth_token")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "def", v)

			require.NoError(t, s.Delete(ctx, "auth_token", "token_expiry", "missing"))
			require.NoError(t, s.Delete(ctx))

			_, ok, err = s.Get(ctx, "token_expiry")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestRedisStoreUsesPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s, err := storage.NewRedisStore(ctx, storage.RedisConfig{Addr: mr.Addr()}, "test:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "refresh_token", "r1"))
	got, err := mr.Get("test:refresh_token")
	require.NoError(t, err)
	require.Equal(t, "r1", got)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := storage.Open(ctx, storage.Config{Driver: "etcd"})
	require.ErrorIs(t, err, apperrors.ErrUnsupported)

	_, err = storage.Open(ctx, storage.Config{Driver: storage.DriverRedis})
	require.Error(t, err)

	_, err = storage.Open(ctx, storage.Config{Driver: storage.DriverSQLite})
	require.Error(t, err)

	s, err := storage.Open(ctx, storage.Config{})
	require.NoError(t, err)
	require.IsType(t, &storage.MemoryStore{}, s)
}
