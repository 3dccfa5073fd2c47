// Package fakeapi is an in-process stand-in for the EquipTrack REST API. It serves the auth,
// user and equipment endpoints the client uses, signs HS256 access tokens and counts calls
// per route so tests can assert on traffic.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/equiptrack-client/users"
	"github.com/rs/zerolog"
)

const apiPrefix = "/api"

// Server is a running fake API.
type Server struct {
	srv          *httptest.Server
	log          zerolog.Logger
	secret       []byte
	accessTTL    time.Duration
	refreshDelay time.Duration
	nowTime      func() time.Time

	accounts *accountRepo
	catalog  *catalog

	mu            sync.Mutex
	generation    int
	refreshTokens map[string]string // refresh token to account id
	resetTokens   map[string]string // reset token to email
	calls         map[string]int
	failures      map[string][]int // route to queued status codes
}

// Option configures a Server
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens. Defaults to one hour.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = d
	}
}

// WithRefreshDelay slows /auth/refresh down, widening the window for concurrent callers.
func WithRefreshDelay(d time.Duration) Option {
	return func(s *Server) {
		s.refreshDelay = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// Start launches the fake API on a loopback port.
func Start(options ...Option) *Server {
	s := &Server{
		log:           zerolog.Nop(),
		secret:        []byte("equiptrack-fake-secret"),
		accessTTL:     time.Hour,
		nowTime:       time.Now,
		accounts:      newAccountRepo(),
		catalog:       newCatalog(),
		refreshTokens: map[string]string{},
		resetTokens:   map[string]string{},
		calls:         map[string]int{},
		failures:      map[string][]int{},
	}
	for _, opt := range options {
		opt(s)
	}
	s.srv = httptest.NewServer(s.routes())
	return s
}

// URL is the API root, suitable as the client's base URL.
func (s *Server) URL() string {
	return s.srv.URL + apiPrefix
}

func (s *Server) Close() {
	s.srv.Close()
}

// AddUser creates an account with a bcrypt hashed password.
func (s *Server) AddUser(p users.Profile, password string) users.Profile {
	hash, err := users.HashPassword(password)
	if err != nil {
		panic(err)
	}
	a := &account{profile: p, passwordHash: hash}
	s.accounts.upsert(a)
	return a.profile
}

// Calls returns how many times a route such as "POST /auth/refresh" was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refreshTokens)
}

// FailNext makes the next len(statuses) calls to route answer with those statuses.
func (s *Server) FailNext(route string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], statuses...)
}

// ResetToken returns the last password reset token issued for email.
func (s *Server) ResetToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, e := range s.resetTokens {
		if strings.EqualFold(e, email) {
			return token
		}
	}
	return ""
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.authenticated(s.handleAuthMe))
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("POST /api/auth/reset-password", s.handleResetPassword)

	mux.HandleFunc("GET /api/users", s.admin(s.handleListUsers))
	mux.HandleFunc("POST /api/users", s.admin(s.handleCreateUser))
	mux.HandleFunc("GET /api/users/me", s.authenticated(s.handleGetMe))
	mux.HandleFunc("PUT /api/users/me", s.authenticated(s.handleUpdateMe))
	mux.HandleFunc("PUT /api/users/me/password", s.authenticated(s.handleChangePassword))
	mux.HandleFunc("GET /api/users/export/csv", s.admin(s.handleExportUsers))
	mux.HandleFunc("GET /api/users/{id}", s.authenticated(s.handleGetUser))
	mux.HandleFunc("PUT /api/users/{id}", s.admin(s.handleUpdateUser))
	mux.HandleFunc("DELETE /api/users/{id}", s.admin(s.handleDeleteUser))
	mux.HandleFunc("PATCH /api/users/{id}/status", s.admin(s.handleSetUserStatus))

	mux.HandleFunc("GET /api/equipments", s.authenticated(s.handleListEquipment))
	mux.HandleFunc("POST /api/equipments", s.authenticated(s.handleCreateEquipment))
	mux.HandleFunc("POST /api/equipments/search", s.authenticated(s.handleSearchEquipment))
	mux.HandleFunc("POST /api/equipments/generate-qr", s.authenticated(s.handleGenerateQR))
	mux.HandleFunc("POST /api/equipments/import", s.authenticated(s.handleImportEquipment))
	mux.HandleFunc("GET /api/equipments/export/csv", s.authenticated(s.handleExportEquipment))
	mux.HandleFunc("GET /api/equipments/statistics", s.authenticated(s.handleStatistics))
	mux.HandleFunc("GET /api/equipments/{id}", s.authenticated(s.handleGetEquipment))
	mux.HandleFunc("PUT /api/equipments/{id}", s.authenticated(s.handleUpdateEquipment))
	mux.HandleFunc("DELETE /api/equipments/{id}", s.authenticated(s.handleDeleteEquipment))
	mux.HandleFunc("PATCH /api/equipments/{id}/status", s.authenticated(s.handleEquipmentStatus))
	mux.HandleFunc("POST /api/equipments/{id}/usage", s.authenticated(s.handleRecordUsage))
	mux.HandleFunc("GET /api/equipments/{id}/history", s.authenticated(s.handleHistory))

	return chainMiddleware(mux.ServeHTTP, s.recoverMiddleware, s.countMiddleware)
}

type userHandler func(w http.ResponseWriter, r *http.Request, a *account)

// authenticated resolves the bearer token to an account or answers 401.
func (s *Server) authenticated(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		id, err := s.verifyAccessToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Token expired or invalid", nil)
			return
		}
		a, err := s.accounts.byID(id)
		if err != nil || !a.profile.Active {
			writeError(w, http.StatusUnauthorized, "Unknown or disabled account", nil)
			return
		}
		next(w, r, a)
	}
}

func (s *Server) admin(next userHandler) http.HandlerFunc {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, a *account) {
		if !a.profile.HasRole(users.RoleAdmin) {
			writeError(w, http.StatusForbidden, "Administrator role required", nil)
			return
		}
		next(w, r, a)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string, fieldErrors map[string][]string) {
	body := map[string]any{"message": message}
	if len(fieldErrors) > 0 {
		body["errors"] = fieldErrors
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

// page slices items for the page and per_page query parameters.
func page[T any](r *http.Request, items []T, defaultPerPage int) map[string]any {
	p := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", defaultPerPage)
	return pageOf(items, p, perPage)
}

func pageOf[T any](items []T, p, perPage int) map[string]any {
	if p < 1 {
		p = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	start := min((p-1)*perPage, len(items))
	end := min(start+perPage, len(items))
	return map[string]any{
		"items":    items[start:end],
		"total":    len(items),
		"page":     p,
		"per_page": perPage,
		"pages":    (len(items) + perPage - 1) / perPage,
	}
}
