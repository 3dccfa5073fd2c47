package fakeapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// mintAccessToken signs an HS256 token for the account. gen ties the token to the current
// token generation so ExpireAccessTokens can invalidate it early.
func (s *Server) mintAccessToken(userID string, gen int) (string, error) {
	now := s.nowTime()
	claims := jwt.MapClaims{
		"sub": userID,
		"gen": gen,
		"iat": now.Unix(),
		"exp": now.Add(s.accessTTL).Unix(),
		"jti": uuid.New().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// verifyAccessToken returns the account id of a valid, current generation token.
func (s *Server) verifyAccessToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.nowTime))
	if err != nil {
		return "", fmt.Errorf("[Server.verifyAccessToken] %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("[Server.verifyAccessToken] unexpected claims")
	}
	gen, _ := claims["gen"].(float64)

	s.mu.Lock()
	current := s.generation
	s.mu.Unlock()
	if int(gen) != current {
		return "", errors.New("[Server.verifyAccessToken] token revoked")
	}
	return claims.GetSubject()
}

// issueTokens mints an access token and a fresh opaque refresh token.
func (s *Server) issueTokens(userID string) (access, refresh string, err error) {
	s.mu.Lock()
	gen := s.generation
	refresh = uuid.New().String()
	s.refreshTokens[refresh] = userID
	s.mu.Unlock()

	access, err = s.mintAccessToken(userID, gen)
	return access, refresh, err
}

func (s *Server) expiresIn() int {
	return int(s.accessTTL / time.Second)
}
