package auth

import (
	"context"
	"strconv"
	"time"

	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
	"github.com/jrsteele09/equiptrack-client/storage"
)

// Keys written in each scope
const (
	KeyAccessToken  = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenExpiry  = "token_expiry" // unix seconds
)

var sessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiry}

// Persistence holds the two storage scopes. A session lives in exactly one of them.
type Persistence struct {
	Durable storage.Store
	Session storage.Store
}

func (p Persistence) store(scope Scope) storage.Store {
	if scope == ScopeDurable {
		return p.Durable
	}
	return p.Session
}

func (p Persistence) other(scope Scope) storage.Store {
	if scope == ScopeDurable {
		return p.Session
	}
	return p.Durable
}

// save writes the tokens to scope and removes them from the other scope.
func (p Persistence) save(ctx context.Context, scope Scope, s Session) error {
	target := p.store(scope)
	if err := target.Set(ctx, KeyAccessToken, s.AccessToken); err != nil {
		return apperrors.Wrapf(err, "[Persistence.save] %s scope", scope)
	}

	if s.RefreshToken != "" {
		if err := target.Set(ctx, KeyRefreshToken, s.RefreshToken); err != nil {
			return apperrors.Wrapf(err, "[Persistence.save] %s scope", scope)
		}
	} else if err := target.Delete(ctx, KeyRefreshToken); err != nil {
		return apperrors.Wrapf(err, "[Persistence.save] %s scope", scope)
	}

	if !s.ExpiresAt.IsZero() {
		if err := target.Set(ctx, KeyTokenExpiry, strconv.FormatInt(s.ExpiresAt.Unix(), 10)); err != nil {
			return apperrors.Wrapf(err, "[Persistence.save] %s scope", scope)
		}
	} else if err := target.Delete(ctx, KeyTokenExpiry); err != nil {
		return apperrors.Wrapf(err, "[Persistence.save] %s scope", scope)
	}

	if err := p.other(scope).Delete(ctx, sessionKeys...); err != nil {
		return apperrors.Wrapf(err, "[Persistence.save] clearing other scope")
	}
	return nil
}

// load returns the stored tokens, looking at the session scope before the durable one.
func (p Persistence) load(ctx context.Context) (Session, Scope, bool, error) {
	for _, scope := range []Scope{ScopeSession, ScopeDurable} {
		s, ok, err := loadFrom(ctx, p.store(scope))
		if err != nil {
			return Session{}, "", false, apperrors.Wrapf(err, "[Persistence.load] %s scope", scope)
		}
		if ok {
			return s, scope, true, nil
		}
	}
	return Session{}, "", false, nil
}

func loadFrom(ctx context.Context, store storage.Store) (Session, bool, error) {
	token, ok, err := store.Get(ctx, KeyAccessToken)
	if err != nil || !ok || token == "" {
		return Session{}, false, err
	}
	s := Session{AccessToken: token}

	if s.RefreshToken, _, err = store.Get(ctx, KeyRefreshToken); err != nil {
		return Session{}, false, err
	}

	expiry, ok, err := store.Get(ctx, KeyTokenExpiry)
	if err != nil {
		return Session{}, false, err
	}
	if ok {
		if secs, err := strconv.ParseInt(expiry, 10, 64); err == nil {
			s.ExpiresAt = time.Unix(secs, 0)
		}
	}
	return s, true, nil
}

func (p Persistence) clear(ctx context.Context) error {
	return apperrors.Join(
		p.Session.Delete(ctx, sessionKeys...),
		p.Durable.Delete(ctx, sessionKeys...),
	)
}
