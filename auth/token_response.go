package auth

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/equiptrack-client/users"
)

// TokenResponse is the body returned by /auth/login, /auth/refresh and, when registration
// signs the user in, /auth/register.
type TokenResponse struct {
	// Token is the access token.
	// Usage: sent as "Authorization: Bearer <token>"
	Token string `json:"token"`

	// RefreshToken is exchanged at /auth/refresh. Refresh responses may omit it, in which case
	// the previous refresh token stays valid.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// When absent, the expiry is read from the token's "exp" claim.
	ExpiresIn int `json:"expires_in,omitempty"`

	// User is the signed in user's profile. Optional on refresh.
	User *users.Profile `json:"user,omitempty"`
}

// expiry resolves the absolute expiry of the access token, zero when unknown.
func (tr *TokenResponse) expiry(now time.Time) time.Time {
	if tr.ExpiresIn > 0 {
		return now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tokenExpiry(tr.Token)
}

// tokenExpiry reads the exp claim without verifying the signature; the server verifies it.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// profileEnvelope accepts both {"user": {...}} and a bare profile.
type profileEnvelope struct {
	users.Profile
}

func (p *profileEnvelope) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		User *users.Profile `json:"user"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.User != nil {
		p.Profile = *wrapped.User
		return nil
	}
	return json.Unmarshal(data, &p.Profile)
}
