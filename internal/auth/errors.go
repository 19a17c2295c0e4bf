package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for every login failure: unknown
	// tenant, unknown or disabled user, and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated is returned when a bearer token cannot be turned into a Principal.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidToken covers malformed, tampered and expired tokens.
	ErrInvalidToken = errors.New("invalid token")
)
