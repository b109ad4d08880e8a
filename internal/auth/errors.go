package auth

import "errors"

var (
	ErrDuplicateEmail      = errors.New("auth: email already registered")
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
	ErrTokenExpired        = errors.New("auth: token expired")
	ErrTokenMalformed      = errors.New("auth: token malformed")
	ErrInvalidSignature    = errors.New("auth: invalid token signature")
	ErrTokenNotFound       = errors.New("auth: token not found")
	ErrAlreadyConfirmed    = errors.New("auth: account already confirmed")
	ErrUnauthenticated     = errors.New("auth: authentication required")
	ErrForbidden           = errors.New("auth: forbidden")
	ErrNotFound            = errors.New("auth: not found")
	ErrInvalidInput        = errors.New("auth: invalid input")
)
