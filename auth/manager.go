package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/equiptrack-client/events"
	"github.com/jrsteele09/equiptrack-client/httpclient"
	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
	"github.com/jrsteele09/equiptrack-client/storage"
	"github.com/jrsteele09/equiptrack-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshHorizon is how long before expiry a token is refreshed proactively.
const DefaultRefreshHorizon = 300 * time.Second

const refreshKey = "refresh"

// Manager owns the session lifecycle and keeps the access token valid. It is the only
// writer of session state; the HTTP client reads tokens through the Authenticator methods.
type Manager struct {
	client  *httpclient.Client
	store   Persistence
	bus     *events.Bus
	log     zerolog.Logger
	nowTime func() time.Time
	horizon time.Duration

	mu      sync.RWMutex
	session Session
	state   State
	scope   Scope

	refreshGroup singleflight.Group
}

var _ httpclient.Authenticator = (*Manager)(nil)

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = l
	}
}

// WithRefreshHorizon overrides DefaultRefreshHorizon.
func WithRefreshHorizon(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.horizon = d
	}
}

// WithBus sets the bus session events are emitted on. Defaults to the client's bus.
func WithBus(bus *events.Bus) ManagerOption {
	return func(m *Manager) {
		m.bus = bus
	}
}

// NewManager creates a manager and installs it on client as the authenticator and as a
// request interceptor. Missing stores default to in-memory stores.
func NewManager(client *httpclient.Client, store Persistence, options ...ManagerOption) (*Manager, error) {
	if client == nil {
		return nil, errors.New("[NewManager] client is required")
	}
	if store.Durable == nil {
		store.Durable = storage.NewMemoryStore()
	}
	if store.Session == nil {
		store.Session = storage.NewMemoryStore()
	}

	m := &Manager{
		client:  client,
		store:   store,
		log:     log.Logger,
		nowTime: time.Now,
		horizon: DefaultRefreshHorizon,
		state:   StateAnonymous,
		scope:   ScopeSession,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.bus == nil {
		m.bus = client.Bus()
	}

	client.SetAuthenticator(m)
	client.AddRequestInterceptor(m.Interceptor())
	return m, nil
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session returns a copy of the current session.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *Manager) User() *users.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.User
}

// AccessToken implements httpclient.Authenticator.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.AccessToken
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.AccessToken != "" && m.session.User != nil
}

// HasRole reports whether the signed in user holds any of roles.
func (m *Manager) HasRole(roles ...users.RoleType) bool {
	if !m.IsAuthenticated() {
		return false
	}
	return m.User().HasRole(roles...)
}

// Can reports whether the signed in user holds every permission.
func (m *Manager) Can(permissions ...string) bool {
	if !m.IsAuthenticated() {
		return false
	}
	return m.User().Can(permissions...)
}

// Login exchanges credentials for a session. RememberMe selects the durable scope.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*Session, error) {
	m.mu.Lock()
	previous := m.state
	m.state = StateAuthenticating
	m.mu.Unlock()

	tr, err := m.postForToken(ctx, "/auth/login", creds)
	if err != nil {
		m.setState(previous)
		return nil, apperrors.Wrapf(loginError(err), "[Manager.Login] %s", creds.Email)
	}

	scope := ScopeSession
	if creds.RememberMe {
		scope = ScopeDurable
	}
	s, err := m.start(ctx, tr, scope)
	if err != nil {
		m.setState(previous)
		return nil, apperrors.Wrapf(err, "[Manager.Login] %s", creds.Email)
	}
	return s, nil
}

func loginError(err error) error {
	var ve *httpclient.ValidationError
	if apperrors.As(err, &ve) && len(ve.FieldErrors) > 0 {
		return err
	}
	var he *httpclient.HTTPError
	if apperrors.As(err, &he) && (he.Status == http.StatusUnauthorized || he.Status == http.StatusUnprocessableEntity) {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidCredentials, he.Message())
	}
	return err
}

// start installs a new session from a login style token response.
func (m *Manager) start(ctx context.Context, tr *TokenResponse, scope Scope) (*Session, error) {
	s := Session{
		AccessToken:  tr.Token,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    tr.expiry(m.nowTime()),
		User:         tr.User,
	}
	if s.User == nil {
		profile, err := m.fetchProfile(ctx, s.AccessToken)
		if err != nil {
			return nil, err
		}
		s.User = profile
	}

	m.mu.Lock()
	m.session = s
	m.scope = scope
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.persist(ctx, scope, s)
	m.log.Info().Str("user", s.User.Email).Str("scope", string(scope)).Msg("signed in")
	m.bus.Emit(events.UserLoggedIn, s.User)
	return &s, nil
}

func (m *Manager) postForToken(ctx context.Context, url string, body any) (*TokenResponse, error) {
	resp, err := m.client.Post(ctx, url, body, httpclient.WithoutAuthRefresh())
	if err != nil {
		return nil, err
	}
	tr, err := httpclient.DecodeAs[TokenResponse](resp)
	if err != nil {
		return nil, err
	}
	if tr.Token == "" {
		return nil, ErrMissingToken
	}
	return tr, nil
}

func (m *Manager) fetchProfile(ctx context.Context, token string) (*users.Profile, error) {
	options := []httpclient.RequestOption{}
	if token != "" {
		options = append(options, httpclient.WithHeader("Authorization", "Bearer "+token), httpclient.WithoutAuthRefresh())
	}
	resp, err := m.client.Get(ctx, "/auth/me", options...)
	if err != nil {
		return nil, err
	}
	env, err := httpclient.DecodeAs[profileEnvelope](resp)
	if err != nil {
		return nil, err
	}
	return &env.Profile, nil
}

// Me fetches the current profile from /auth/me and stores it on the session.
func (m *Manager) Me(ctx context.Context) (*users.Profile, error) {
	profile, err := m.fetchProfile(ctx, "")
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Manager.Me]")
	}
	m.mu.Lock()
	if m.session.AccessToken != "" {
		m.session.User = profile
	}
	m.mu.Unlock()
	return profile, nil
}

// EnsureFreshToken refreshes the access token when it expires within the refresh horizon.
// Concurrent callers share one refresh.
func (m *Manager) EnsureFreshToken(ctx context.Context) error {
	s := m.Session()
	if s.AccessToken == "" || !s.ExpiresWithin(m.nowTime(), m.horizon) {
		return nil
	}
	_, err := m.refresh(ctx, s.AccessToken)
	return err
}

// ForceRefresh implements httpclient.Authenticator. When the current token already differs
// from staleToken another caller has refreshed and the current token is returned.
func (m *Manager) ForceRefresh(ctx context.Context, staleToken string) (string, error) {
	if current := m.AccessToken(); current != "" && current != staleToken {
		return current, nil
	}
	return m.refresh(ctx, staleToken)
}

// refresh joins or starts the single in-flight refresh. The refresh itself is detached from
// ctx so one caller giving up does not fail the others; each caller still stops waiting when
// its own ctx is done.
func (m *Manager) refresh(ctx context.Context, staleToken string) (string, error) {
	ch := m.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return m.doRefresh(context.WithoutCancel(ctx), staleToken)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("[Manager.refresh] %w", apperrors.ErrCancelled)
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) doRefresh(ctx context.Context, staleToken string) (string, error) {
	m.mu.Lock()
	current := m.session.AccessToken
	if current == "" {
		m.mu.Unlock()
		return "", fmt.Errorf("[Manager.refresh] %w", apperrors.ErrNotAuthenticated)
	}
	if current != staleToken {
		m.mu.Unlock()
		return current, nil
	}
	refreshToken := m.session.RefreshToken
	m.state = StateRefreshing
	m.mu.Unlock()

	if refreshToken == "" {
		if !m.expire(ctx, refreshToken, apperrors.ErrNoRefreshToken) {
			return "", fmt.Errorf("[Manager.refresh] %w", apperrors.ErrNotAuthenticated)
		}
		return "", fmt.Errorf("[Manager.refresh] %w: %w", apperrors.ErrSessionExpired, apperrors.ErrNoRefreshToken)
	}

	tr, err := m.postForToken(ctx, "/auth/refresh", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		if !m.expire(ctx, refreshToken, err) {
			// signed out or replaced while the refresh was in flight
			return "", fmt.Errorf("[Manager.refresh] %w", apperrors.ErrNotAuthenticated)
		}
		return "", fmt.Errorf("[Manager.refresh] %w: %w", apperrors.ErrSessionExpired, err)
	}

	m.mu.Lock()
	if m.session.RefreshToken != refreshToken {
		// signed out or replaced while the refresh was in flight
		m.mu.Unlock()
		return "", fmt.Errorf("[Manager.refresh] %w", apperrors.ErrNotAuthenticated)
	}
	m.session.AccessToken = tr.Token
	if tr.RefreshToken != "" {
		m.session.RefreshToken = tr.RefreshToken
	}
	m.session.ExpiresAt = tr.expiry(m.nowTime())
	if tr.User != nil {
		m.session.User = tr.User
	}
	m.state = StateAuthenticated
	s, scope := m.session, m.scope
	m.mu.Unlock()

	m.persist(ctx, scope, s)
	m.log.Debug().Time("expires_at", s.ExpiresAt).Msg("access token refreshed")
	m.bus.Emit(events.TokenRefreshed, s.ExpiresAt)
	return s.AccessToken, nil
}

// expire clears the session after a failed refresh of refreshToken. A session installed by a
// newer login is left alone and expire reports false.
func (m *Manager) expire(ctx context.Context, refreshToken string, cause error) bool {
	m.mu.Lock()
	if m.session.RefreshToken != refreshToken {
		m.mu.Unlock()
		m.log.Debug().Err(cause).Msg("stale token refresh failed, newer session kept")
		return false
	}
	m.session = Session{}
	m.state = StateAnonymous
	m.mu.Unlock()

	m.log.Warn().Err(cause).Msg("token refresh failed, session expired")
	if err := m.store.clear(ctx); err != nil {
		m.log.Error().Err(err).Msg("clearing stored session")
	}
	m.bus.Emit(events.SessionExpired, cause)
	return true
}

// Logout tells the server (best effort) and always clears the local session.
func (m *Manager) Logout(ctx context.Context) error {
	user := m.User()
	if m.AccessToken() != "" {
		if _, err := m.client.Post(ctx, "/auth/logout", nil, httpclient.WithoutAuthRefresh()); err != nil {
			m.log.Warn().Err(err).Msg("logout request failed")
		}
	}
	err := m.reset(ctx)
	m.bus.Emit(events.UserLoggedOut, user)
	return err
}

func (m *Manager) reset(ctx context.Context) error {
	m.mu.Lock()
	m.session = Session{}
	m.state = StateAnonymous
	m.mu.Unlock()

	if err := m.store.clear(ctx); err != nil {
		m.log.Error().Err(err).Msg("clearing stored session")
		return apperrors.Wrapf(err, "[Manager.reset]")
	}
	return nil
}

// InitFromStorage restores a persisted session, session scope first, and verifies it with
// /auth/me. It reports whether a session was restored.
func (m *Manager) InitFromStorage(ctx context.Context) (bool, error) {
	s, scope, ok, err := m.store.load(ctx)
	if err != nil || !ok {
		return false, err
	}

	m.mu.Lock()
	m.session = s
	m.scope = scope
	m.state = StateAuthenticated
	m.mu.Unlock()

	profile, err := m.Me(ctx)
	if err != nil {
		if ctx.Err() == nil {
			_ = m.reset(ctx)
		}
		return false, apperrors.Wrapf(err, "[Manager.InitFromStorage]")
	}

	m.log.Info().Str("user", profile.Email).Str("scope", string(scope)).Msg("session restored")
	m.bus.Emit(events.UserLoggedIn, profile)
	return true, nil
}

// Register creates an account. When the server signs the new user in, the session starts in
// the session scope.
func (m *Manager) Register(ctx context.Context, reg Registration) (*users.Profile, error) {
	if err := users.ValidatePasswordStrength(reg.Password); err != nil {
		return nil, apperrors.Wrapf(users.ErrWeakPassword, "[Manager.Register] %s", err)
	}
	resp, err := m.client.Post(ctx, "/auth/register", reg, httpclient.WithoutAuthRefresh())
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Manager.Register] %s", reg.Email)
	}

	tr, err := httpclient.DecodeAs[TokenResponse](resp)
	if err != nil {
		return nil, err
	}
	if tr.Token != "" {
		s, err := m.start(ctx, tr, ScopeSession)
		if err != nil {
			return nil, apperrors.Wrapf(err, "[Manager.Register] %s", reg.Email)
		}
		return s.User, nil
	}

	env, err := httpclient.DecodeAs[profileEnvelope](resp)
	if err != nil {
		return nil, err
	}
	return &env.Profile, nil
}

// ForgotPassword requests a reset email. Unknown addresses are reported as success so the
// result does not reveal which accounts exist.
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	_, err := m.client.Post(ctx, "/auth/forgot-password", map[string]string{"email": email}, httpclient.WithoutAuthRefresh())
	var he *httpclient.HTTPError
	if apperrors.As(err, &he) && he.Status == http.StatusNotFound {
		return nil
	}
	return apperrors.Wrapf(err, "[Manager.ForgotPassword]")
}

func (m *Manager) ResetPassword(ctx context.Context, reset PasswordReset) error {
	_, err := m.client.Post(ctx, "/auth/reset-password", reset, httpclient.WithoutAuthRefresh())
	var he *httpclient.HTTPError
	if apperrors.As(err, &he) && he.Status == http.StatusBadRequest {
		return apperrors.Wrapf(ErrInvalidResetToken, "[Manager.ResetPassword]")
	}
	return apperrors.Wrapf(err, "[Manager.ResetPassword]")
}

// Interceptor refreshes a token that is about to expire before the request is sent and
// updates the bearer header. Requests that opted out of auth refresh pass through.
func (m *Manager) Interceptor() httpclient.RequestInterceptor {
	return func(ctx context.Context, req httpclient.Request) (httpclient.Request, error) {
		if req.SkipAuthRefresh {
			return req, nil
		}
		before := m.AccessToken()
		if err := m.EnsureFreshToken(ctx); err != nil {
			return req, err
		}
		after := m.AccessToken()
		if after != before && req.Header.Get("Authorization") == "Bearer "+before {
			req.Header.Set("Authorization", "Bearer "+after)
		}
		return req, nil
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *Manager) persist(ctx context.Context, scope Scope, s Session) {
	if err := m.store.save(ctx, scope, s); err != nil {
		m.log.Error().Err(err).Str("scope", string(scope)).Msg("persisting session")
	}
}
