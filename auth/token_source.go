package auth

import (
	"context"
	"fmt"

	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
	"golang.org/x/oauth2"
)

// TokenSource exposes the session as an oauth2.TokenSource, so an oauth2.Transport (or any
// library that accepts a token source) authenticates with the current access token. Each call
// refreshes a token that is inside the refresh horizon first.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, m: m}
}

type managerTokenSource struct {
	ctx context.Context
	m   *Manager
}

func (ts *managerTokenSource) Token() (*oauth2.Token, error) {
	if err := ts.m.EnsureFreshToken(ts.ctx); err != nil {
		return nil, fmt.Errorf("[Manager.Token] %w", err)
	}
	s := ts.m.Session()
	if s.AccessToken == "" {
		return nil, fmt.Errorf("[Manager.Token] %w", apperrors.ErrNotAuthenticated)
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.ExpiresAt,
	}, nil
}
