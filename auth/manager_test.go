package auth_test

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/equiptrack-client/auth"
	"github.com/jrsteele09/equiptrack-client/events"
	"github.com/jrsteele09/equiptrack-client/httpclient"
	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
	"github.com/jrsteele09/equiptrack-client/internal/fakeapi"
	"github.com/jrsteele09/equiptrack-client/storage"
	"github.com/jrsteele09/equiptrack-client/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "Passw0rdAdmin"
)

type testFixture struct {
	api     *fakeapi.Server
	client  *httpclient.Client
	manager *auth.Manager
	store   auth.Persistence

	mu     sync.Mutex
	events map[string]int
}

type fixtureOptions struct {
	server  []fakeapi.Option
	manager []auth.ManagerOption
	store   auth.Persistence
}

func newFixture(t *testing.T, opts fixtureOptions) *testFixture {
	t.Helper()
	api := fakeapi.Start(opts.server...)
	t.Cleanup(api.Close)

	api.AddUser(users.Profile{
		Username:    "admin",
		Email:       adminEmail,
		FirstName:   "Ada",
		LastName:    "Admin",
		Role:        users.RoleAdmin,
		Permissions: []string{"equipment:*", "users:read"},
		Active:      true,
	}, adminPassword)

	if opts.store.Durable == nil {
		opts.store.Durable = storage.NewMemoryStore()
	}
	if opts.store.Session == nil {
		opts.store.Session = storage.NewMemoryStore()
	}
	f := &testFixture{api: api, store: opts.store, events: map[string]int{}}
	f.connect(t, opts.manager...)
	return f
}

// connect builds a fresh client and manager against the same API and stores, as a restarted
// process would.
func (f *testFixture) connect(t *testing.T, options ...auth.ManagerOption) {
	t.Helper()
	cfg := httpclient.DefaultConfig(f.api.URL())
	cfg.MaxRetries = 0
	f.client = httpclient.New(cfg)

	m, err := auth.NewManager(f.client, f.store, options...)
	require.NoError(t, err)
	f.manager = m

	_, err = f.client.Bus().Subscribe("*", func(evt events.Event) (any, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events[evt.Name]++
		return nil, nil
	})
	require.NoError(t, err)
}

func (f *testFixture) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[name]
}

func (f *testFixture) login(t *testing.T, rememberMe bool) *auth.Session {
	t.Helper()
	s, err := f.manager.Login(context.Background(), auth.Credentials{Email: adminEmail, Password: adminPassword, RememberMe: rememberMe})
	require.NoError(t, err)
	return s
}

func stored(t *testing.T, s storage.Store, key string) (string, bool) {
	t.Helper()
	v, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func TestLogin(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, auth.StateAnonymous, f.manager.State())
	require.False(t, f.manager.IsAuthenticated())

	s := f.login(t, false)
	require.NotEmpty(t, s.AccessToken)
	require.NotEmpty(t, s.RefreshToken)
	require.WithinDuration(t, time.Now().Add(time.Hour), s.ExpiresAt, 5*time.Second)
	require.Equal(t, adminEmail, s.User.Email)

	require.True(t, f.manager.IsAuthenticated())
	require.Equal(t, auth.StateAuthenticated, f.manager.State())
	require.Equal(t, 1, f.count(events.UserLoggedIn))

	token, ok := stored(t, f.store.Session, auth.KeyAccessToken)
	require.True(t, ok)
	require.Equal(t, s.AccessToken, token)
	_, ok = stored(t, f.store.Durable, auth.KeyAccessToken)
	require.False(t, ok)

	// the bearer is attached to later requests
	resp, err := f.client.Get(context.Background(), "/users/me")
	require.NoError(t, err)
	p, err := httpclient.DecodeAs[users.Profile](resp)
	require.NoError(t, err)
	require.Equal(t, "admin", p.Username)
}

func TestLoginErrors(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	_, err := f.manager.Login(ctx, auth.Credentials{Email: adminEmail, Password: "wrong"})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.Equal(t, auth.StateAnonymous, f.manager.State())
	require.Equal(t, 0, f.api.Calls("POST /auth/refresh"))

	_, err = f.manager.Login(ctx, auth.Credentials{Email: adminEmail})
	var ve *httpclient.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, []string{"password"}, ve.Fields())
	require.Equal(t, auth.StateAnonymous, f.manager.State())
	require.Equal(t, 0, f.count(events.UserLoggedIn))
}

func TestConcurrentUnauthorizedRequestsShareOneRefresh(t *testing.T) {
	f := newFixture(t, fixtureOptions{server: []fakeapi.Option{fakeapi.WithRefreshDelay(100 * time.Millisecond)}})
	first := f.login(t, false)
	f.api.ExpireAccessTokens()

	const n = 10
	var g errgroup.Group
	for range n {
		g.Go(func() error {
			_, err := f.client.Get(context.Background(), "/users/me")
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, 1, f.api.Calls("POST /auth/refresh"))
	require.Equal(t, 1, f.count(events.TokenRefreshed))
	require.Equal(t, 0, f.count(events.AuthRequired))
	require.NotEqual(t, first.AccessToken, f.manager.AccessToken())
	require.NotEqual(t, first.RefreshToken, f.manager.Session().RefreshToken)
	require.Equal(t, auth.StateAuthenticated, f.manager.State())
	require.Equal(t, adminEmail, f.manager.User().Email)

	token, _ := stored(t, f.store.Session, auth.KeyAccessToken)
	require.Equal(t, f.manager.AccessToken(), token)
}

func TestProactiveRefresh(t *testing.T) {
	now := time.Now()
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	f := newFixture(t, fixtureOptions{manager: []auth.ManagerOption{auth.WithNowTime(clock)}})
	f.login(t, false)
	ctx := context.Background()

	_, err := f.client.Get(ctx, "/users/me")
	require.NoError(t, err)
	require.Equal(t, 0, f.api.Calls("POST /auth/refresh"))

	// inside the five minute horizon of the one hour token
	clockMu.Lock()
	now = now.Add(56 * time.Minute)
	clockMu.Unlock()

	_, err = f.client.Get(ctx, "/users/me")
	require.NoError(t, err)
	require.Equal(t, 1, f.api.Calls("POST /auth/refresh"))
	require.Equal(t, 2, f.api.Calls("GET /users/me"))

	_, err = f.client.Get(ctx, "/users/me")
	require.NoError(t, err)
	require.Equal(t, 1, f.api.Calls("POST /auth/refresh"))
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.login(t, false)
	f.api.ExpireAccessTokens()
	f.api.RevokeRefreshTokens()

	_, err := f.client.Get(context.Background(), "/users/me")
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Equal(t, httpclient.CategoryAuth, httpclient.CategoryOf(err))

	require.Equal(t, 1, f.count(events.SessionExpired))
	// only the rejected /auth/refresh call itself reports auth:required
	require.Equal(t, 1, f.count(events.AuthRequired))
	require.Equal(t, auth.StateAnonymous, f.manager.State())
	require.False(t, f.manager.IsAuthenticated())
	_, ok := stored(t, f.store.Session, auth.KeyAccessToken)
	require.False(t, ok)
}

func TestFailedRefreshKeepsNewerLogin(t *testing.T) {
	f := newFixture(t, fixtureOptions{server: []fakeapi.Option{fakeapi.WithRefreshDelay(300 * time.Millisecond)}})
	f.login(t, false)
	f.api.ExpireAccessTokens()
	f.api.RevokeRefreshTokens()

	done := make(chan error, 1)
	go func() {
		_, err := f.client.Get(context.Background(), "/users/me")
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.api.Calls("POST /auth/refresh") == 1
	}, time.Second, 5*time.Millisecond)

	// signs in again while the doomed refresh is still in flight
	fresh := f.login(t, false)

	err := <-done
	var he *httpclient.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusUnauthorized, he.Status)
	require.NotErrorIs(t, err, apperrors.ErrSessionExpired)

	require.Equal(t, 0, f.count(events.SessionExpired))
	require.True(t, f.manager.IsAuthenticated())
	require.Equal(t, auth.StateAuthenticated, f.manager.State())
	require.Equal(t, fresh.AccessToken, f.manager.AccessToken())
	token, ok := stored(t, f.store.Session, auth.KeyAccessToken)
	require.True(t, ok)
	require.Equal(t, fresh.AccessToken, token)

	_, err = f.client.Get(context.Background(), "/users/me")
	require.NoError(t, err)
}

func TestAnonymousUnauthorizedIsNotRefreshed(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, err := f.client.Get(context.Background(), "/users/me")
	var he *httpclient.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusUnauthorized, he.Status)
	require.NotErrorIs(t, err, apperrors.ErrSessionExpired)

	require.Equal(t, 0, f.api.Calls("POST /auth/refresh"))
	require.Equal(t, 0, f.count(events.SessionExpired))
	require.Equal(t, 1, f.count(events.AuthRequired))
}

func TestRememberMeRestoresFromDurableStore(t *testing.T) {
	durable, err := storage.Open(context.Background(), storage.Config{
		Driver: storage.DriverSQLite,
		SQLite: storage.SQLiteConfig{DSN: filepath.Join(t.TempDir(), "session.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = durable.Close() })

	f := newFixture(t, fixtureOptions{store: auth.Persistence{Durable: durable}})
	s := f.login(t, true)

	token, ok := stored(t, durable, auth.KeyAccessToken)
	require.True(t, ok)
	require.Equal(t, s.AccessToken, token)
	_, ok = stored(t, f.store.Session, auth.KeyAccessToken)
	require.False(t, ok)

	// restart with an empty session store and the same durable store
	f.store.Session = storage.NewMemoryStore()
	f.connect(t)
	require.False(t, f.manager.IsAuthenticated())

	restored, err := f.manager.InitFromStorage(context.Background())
	require.NoError(t, err)
	require.True(t, restored)
	require.True(t, f.manager.IsAuthenticated())
	require.Equal(t, s.AccessToken, f.manager.AccessToken())
	require.Equal(t, adminEmail, f.manager.User().Email)
	require.Equal(t, 1, f.api.Calls("POST /auth/login"))
}

func TestInitFromStorageRefreshesExpiredToken(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.login(t, true)
	f.api.ExpireAccessTokens()

	f.connect(t)
	restored, err := f.manager.InitFromStorage(context.Background())
	require.NoError(t, err)
	require.True(t, restored)
	require.Equal(t, 1, f.api.Calls("POST /auth/refresh"))

	// the refreshed token stays in the durable scope
	token, ok := stored(t, f.store.Durable, auth.KeyAccessToken)
	require.True(t, ok)
	require.Equal(t, f.manager.AccessToken(), token)
}

func TestInitFromStorageEmpty(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	restored, err := f.manager.InitFromStorage(context.Background())
	require.NoError(t, err)
	require.False(t, restored)
	require.Equal(t, 0, f.api.Calls("GET /auth/me"))
}

func TestSessionLivesInOneScope(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	f.login(t, true)
	_, ok := stored(t, f.store.Durable, auth.KeyAccessToken)
	require.True(t, ok)

	f.login(t, false)
	_, ok = stored(t, f.store.Session, auth.KeyAccessToken)
	require.True(t, ok)
	for _, key := range []string{auth.KeyAccessToken, auth.KeyRefreshToken, auth.KeyTokenExpiry} {
		_, ok = stored(t, f.store.Durable, key)
		require.False(t, ok, key)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.login(t, true)

	require.NoError(t, f.manager.Logout(context.Background()))
	require.Equal(t, 1, f.api.Calls("POST /auth/logout"))
	require.Equal(t, 1, f.count(events.UserLoggedOut))
	require.Equal(t, auth.StateAnonymous, f.manager.State())
	require.Nil(t, f.manager.User())
	_, ok := stored(t, f.store.Durable, auth.KeyAccessToken)
	require.False(t, ok)

	// a second logout has nothing to tell the server
	require.NoError(t, f.manager.Logout(context.Background()))
	require.Equal(t, 1, f.api.Calls("POST /auth/logout"))
}

func TestRolesAndPermissions(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.False(t, f.manager.HasRole(users.RoleAdmin))
	require.False(t, f.manager.Can("equipment:read"))

	f.login(t, false)
	require.True(t, f.manager.HasRole(users.RoleAdmin))
	require.True(t, f.manager.HasRole(users.RoleStudent, users.RoleAdmin))
	require.False(t, f.manager.HasRole(users.RoleTeacher))

	require.True(t, f.manager.Can("equipment:read"))
	require.True(t, f.manager.Can("equipment:read", "users:read"))
	require.True(t, f.manager.Can("users:*"))
	require.False(t, f.manager.Can("users:delete"))
	require.False(t, f.manager.Can())
}

func TestTokenSource(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	_, err := f.manager.TokenSource(ctx).Token()
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)

	s := f.login(t, false)
	token, err := f.manager.TokenSource(ctx).Token()
	require.NoError(t, err)
	require.Equal(t, s.AccessToken, token.AccessToken)
	require.Equal(t, s.RefreshToken, token.RefreshToken)
	require.True(t, token.Valid())

	hc := oauth2.NewClient(ctx, f.manager.TokenSource(ctx))
	res, err := hc.Get(f.api.URL() + "/auth/me")
	require.NoError(t, err)
	_ = res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRegister(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	_, err := f.manager.Register(ctx, auth.Registration{Username: "sam", Email: "sam@example.com", Password: "short"})
	require.ErrorIs(t, err, users.ErrWeakPassword)
	require.Equal(t, 0, f.api.Calls("POST /auth/register"))

	p, err := f.manager.Register(ctx, auth.Registration{
		Username:             "sam",
		Email:                "sam@example.com",
		Password:             "Secr3tPass",
		PasswordConfirmation: "Secr3tPass",
		FirstName:            "Sam",
	})
	require.NoError(t, err)
	require.Equal(t, users.RoleStudent, p.Role)
	require.True(t, f.manager.IsAuthenticated())
	require.Equal(t, "sam@example.com", f.manager.User().Email)

	_, err = f.manager.Register(ctx, auth.Registration{Username: "sam2", Email: "sam@example.com", Password: "Secr3tPass"})
	var ve *httpclient.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, []string{"email"}, ve.Fields())
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	require.NoError(t, f.manager.ForgotPassword(ctx, "nobody@example.com"))
	require.NoError(t, f.manager.ForgotPassword(ctx, adminEmail))
	token := f.api.ResetToken(adminEmail)
	require.NotEmpty(t, token)

	err := f.manager.ResetPassword(ctx, auth.PasswordReset{Token: "bogus", Email: adminEmail, Password: "N3wPassword", PasswordConfirmation: "N3wPassword"})
	require.ErrorIs(t, err, auth.ErrInvalidResetToken)

	require.NoError(t, f.manager.ResetPassword(ctx, auth.PasswordReset{Token: token, Email: adminEmail, Password: "N3wPassword", PasswordConfirmation: "N3wPassword"}))

	_, err = f.manager.Login(ctx, auth.Credentials{Email: adminEmail, Password: adminPassword})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = f.manager.Login(ctx, auth.Credentials{Email: adminEmail, Password: "N3wPassword"})
	require.NoError(t, err)
}
