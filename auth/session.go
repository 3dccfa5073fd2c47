package auth

import (
	"time"

	"github.com/jrsteele09/equiptrack-client/users"
)

// State of the session manager
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateRefreshing     State = "refreshing"
)

// Scope selects where a session is persisted
type Scope string

const (
	ScopeSession Scope = "session" // Lives as long as the process (or the session store)
	ScopeDurable Scope = "durable" // Survives restarts; chosen by RememberMe
)

// Session holds the tokens of the signed in user.
type Session struct {
	AccessToken  string         // Bearer token sent with every request
	RefreshToken string         // Exchanged at /auth/refresh for a new access token
	ExpiresAt    time.Time      // Access token expiry; zero when unknown
	User         *users.Profile // Profile returned at login or by /auth/me
}

// ExpiresWithin reports whether the access token expires before now+horizon. Sessions with an
// unknown expiry never do.
func (s Session) ExpiresWithin(now time.Time, horizon time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(horizon).Before(s.ExpiresAt)
}

// Credentials for Login
type Credentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// Registration is the payload for Register
type Registration struct {
	Username             string `json:"username"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation,omitempty"`
	FirstName            string `json:"first_name,omitempty"`
	LastName             string `json:"last_name,omitempty"`
	Department           string `json:"department,omitempty"`
}

// PasswordReset is the payload for ResetPassword
type PasswordReset struct {
	Token                string `json:"token"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}
