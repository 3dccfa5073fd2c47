package auth

import "errors"

var (
	ErrInvalidResetToken = errors.New("password reset link is invalid or has expired")
	ErrMissingToken      = errors.New("token response has no access token")
)
